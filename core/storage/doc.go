// Package storage provides access to the object storage holding CSV imports and exports.
//
// It wraps the MinIO Go client, which serves both AWS S3 and self-hosted MinIO
// instances, behind the Client interface so that tests can use core/storage/mocks.
//
// Objects binds a client to one bucket and offers the operations used by the CSV
// stream commands and handlers: EnsureBucket, Open, ReadAll, Save, List and Remove.
// Reading a missing object fails with a NotFound error from core/clienterr.
//
// # Usage
//
//	client, err := storage.NewClient(cfg.Storage)
//	objects := storage.NewObjects(client, cfg.Storage.Bucket)
//	data, err := objects.ReadAll(ctx, "imports/users.csv")
package storage
