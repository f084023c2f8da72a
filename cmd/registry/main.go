package main

import (
	_ "net/http/pprof"

	"github.com/bkrepo/registry/registry"
	_ "github.com/bkrepo/registry/registry/auth/fixed"
	_ "github.com/bkrepo/registry/registry/auth/htpasswd"
	_ "github.com/bkrepo/registry/registry/storage/driver/filesystem"
	_ "github.com/bkrepo/registry/registry/storage/driver/inmemory"
	_ "github.com/bkrepo/registry/registry/storage/driver/s3-aws"
)

func main() {
	registry.RootCmd.Execute()
}
