// Command semkv manipulates a semkv store from the shell.
//
//	semkv --dir ./data --dim 3 put doc1 --vector 1,0,0 --payload '{"title":"a"}'
//	semkv --dir ./data search --vector 1,0,0 -k 5
//	semkv --dir ./data range --vector 1,0,0 --radius 0.5
//	MINIO_ACCESS_KEY=... MINIO_SECRET_KEY=... semkv --minio-endpoint localhost:9000 --minio-bucket kv stats
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
