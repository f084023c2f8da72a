package driver

//go:generate mockgen -package mocks -destination mocks/nodedriver.go . NodeDriver
//go:generate mockgen -package mocks -destination mocks/blobstore.go . BlobStore
//go:generate mockgen -package mocks -destination mocks/uploadpurger.go . UploadPurger
