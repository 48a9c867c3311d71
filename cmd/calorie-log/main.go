// cmd/calorie-log/main.go
package main

import (
	"os"

	_ "time/tzdata"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
