// Package opensearch provides the remote search backend, talking to an
// OpenSearch cluster through opensearch-go.
//
// Index management failures are returned as *domain.TransportError carrying
// the cluster's status, error type and reason. Document ids are scanned
// with the scroll API.
package opensearch
