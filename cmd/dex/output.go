package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// outputJSON prints v as indented JSON on stdout.
func outputJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: encoding JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}
