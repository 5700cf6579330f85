package util

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

func readLine() (string, error) {
	response, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.ToLower(response)), nil
}

// Confirm asks a plain yes/no question and reports whether the operator
// answered y or yes.
func Confirm(prompt string) bool {
	fmt.Print(prompt)
	response, err := readLine()
	if err != nil {
		return false
	}
	return response == "y" || response == "yes"
}

// ConfirmDanger gates an irreversible operation (mass erase, option-byte
// rewrite) behind an explicit "yes" rather than a bare y/n.
func ConfirmDanger(operation string) bool {
	fmt.Printf("\nWARNING: %s\n", operation)
	fmt.Println("This operation cannot be undone.")
	fmt.Print("\nType 'yes' to confirm: ")

	response, err := readLine()
	if err != nil {
		return false
	}
	return response == "yes"
}
