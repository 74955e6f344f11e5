package main

import (
	"flag"
	"fmt"
	"os"
)

func main() {
	version := flag.Bool("version", false, "print version")
	help := flag.Bool("help", false, "print help")
	flag.Parse()

	switch {
	case *version:
		fmt.Fprintln(os.Stderr, "version: 9999 (abcdef1) built with CUDA support")
	case *help:
		fmt.Fprintln(os.Stdout, "usage: llama-cli [options]\n  --flash-attn [on|off|auto]  flash attention mode")
	}
}
