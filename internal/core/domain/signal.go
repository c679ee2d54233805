package domain

// SignalKind identifies a relational store lifecycle event.
type SignalKind string

// Lifecycle events emitted by the relational store.
const (
	SignalPostSave   SignalKind = "post_save"
	SignalPreDelete  SignalKind = "pre_delete"
	SignalM2MChanged SignalKind = "m2m_changed"
)

// M2MAction is the phase of a many-to-many membership change.
type M2MAction string

// Many-to-many phases.
const (
	M2MPreAdd     M2MAction = "pre_add"
	M2MPostAdd    M2MAction = "post_add"
	M2MPreRemove  M2MAction = "pre_remove"
	M2MPostRemove M2MAction = "post_remove"
	M2MPreClear   M2MAction = "pre_clear"
	M2MPostClear  M2MAction = "post_clear"
)

// Signal carries one lifecycle event.
type Signal struct {
	Kind   SignalKind
	Sender *Model
	Entity *Entity

	// Created is set on post_save for inserts.
	Created bool

	// M2M fields; Entity is the owner of the relation.
	Action   M2MAction
	Relation string
	Targets  []int64
}
