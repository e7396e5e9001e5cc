// Command fonomed は言語聴覚療法クリニック向けのAPIサーバーとワーカーを起動する。
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/fonomed/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fonomed: %v\n", err)
		os.Exit(1)
	}
}
