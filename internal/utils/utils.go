// Package utils holds the CLI output helpers.
package utils

import (
	"fmt"
	"os"
)

// Color output helpers
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

// PrintSuccess prints a success message
func PrintSuccess(msg string, args ...interface{}) {
	fmt.Printf(colorGreen+"✓ "+msg+colorReset+"\n", args...)
}

// PrintError prints an error message
func PrintError(msg string, args ...interface{}) {
	fmt.Printf(colorRed+"✗ "+msg+colorReset+"\n", args...)
}

// PrintInfo prints an info message
func PrintInfo(msg string, args ...interface{}) {
	fmt.Printf(colorCyan+"ℹ "+msg+colorReset+"\n", args...)
}

// PrintWarning prints a warning message
func PrintWarning(msg string, args ...interface{}) {
	fmt.Printf(colorYellow+"⚠ "+msg+colorReset+"\n", args...)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
