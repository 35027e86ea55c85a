// Package containers starts Docker-backed dependencies for integration tests.
//
// It currently provides a MySQL 8 container for exercising the gateway store
// with the mysql driver. Tests using it carry the "integration" build tag:
//
//	//go:build integration
//
// and run with:
//
//	go test -tags=integration ./internal/datastore/...
package containers
