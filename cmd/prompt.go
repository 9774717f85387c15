package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/comfe-salud/rips-cli/internal/canon"
)

// confirmToken must be typed verbatim before the destructive asset write.
const confirmToken = "SI"

// promptDate asks for the consultation date and re-prompts until the input
// parses. Accepted formats: YYYY-MM-DD, DD/MM/YYYY, DD-MM-YYYY.
func promptDate(in io.Reader, out io.Writer) (time.Time, error) {
	r := bufio.NewReader(in)
	for {
		fmt.Fprint(out, "Consultation date (YYYY-MM-DD or DD/MM/YYYY): ")
		line, err := r.ReadString('\n')
		d, perr := canon.ParseUserDate(strings.TrimSpace(line))
		if perr == nil {
			return d, nil
		}
		fmt.Fprintln(out, "Invalid date, try again.")
		if err != nil {
			// Input exhausted, nothing left to re-prompt against.
			return time.Time{}, perr
		}
	}
}

// promptConfirm asks for the literal confirmation token. Anything else
// declines; the decision is captured verbatim, never inferred.
func promptConfirm(in io.Reader, out io.Writer, rows int) (bool, error) {
	r := bufio.NewReader(in)
	fmt.Fprintf(out, "About to insert %d asset rows. Type %s to confirm: ", rows, confirmToken)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return false, err
	}
	return strings.TrimSpace(line) == confirmToken, nil
}
