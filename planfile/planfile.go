// Package planfile parses the ASCII migration-plan format used to drive
// cmd/binshift: a human-writable stand-in for the
// control-command log described in spec.md §6, independent of any
// on-disk persistence of operator state (spec.md's "no persisted state"
// constraint applies to bin contents, not to this external replay input).
//
// Grammar, one logical group per blank-line-separated paragraph. Every
// non-empty, non-comment line within a paragraph becomes one
// control.Command; the paragraph's line count becomes that group's Count,
// and groups are numbered 0, 1, 2, ... in file order to become Sequence.
//
//	# comment
//	M 0 0 1 1          -- MapInst: this paragraph's line sets bin->worker map
//	                      to [0 0 1 1] (four bins, bins 0-1 on worker 0, 2-3 on worker 1)
//
//	D 2 1              -- MoveInst: move bin 2 to worker 1
//	D 3 0              -- MoveInst: move bin 3 to worker 0 (same group, Count=2)
//
//	N                  -- NoOpInst
package planfile

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/binshift/binshift/bin"
	"github.com/binshift/binshift/control"
)

// Group is one sequence-numbered batch of commands parsed from a single
// paragraph of the plan file.
type Group struct {
	Sequence uint64
	Commands []control.Command
}

// Parse reads a complete migration plan from r.
func Parse(r io.Reader) ([]Group, error) {
	scanner := bufio.NewScanner(r)
	var groups []Group
	var current []control.Command
	var sequence uint64
	lineNo := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		groups = append(groups, Group{Sequence: sequence, Commands: current})
		current = nil
		sequence++
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}

		inst, err := parseInst(line)
		if err != nil {
			return nil, fmt.Errorf("planfile: line %d: %w", lineNo, err)
		}
		current = append(current, control.Command{Inst: inst})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()

	for i := range groups {
		count := uint16(len(groups[i].Commands))
		for j := range groups[i].Commands {
			groups[i].Commands[j].Sequence = groups[i].Sequence
			groups[i].Commands[j].Count = count
		}
	}
	return groups, nil
}

func parseInst(line string) (control.Inst, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty instruction")
	}

	switch fields[0] {
	case "M":
		workers := fields[1:]
		m := make(bin.Map, len(workers))
		for i, w := range workers {
			n, err := strconv.ParseUint(w, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("M: worker %q: %w", w, err)
			}
			m[i] = bin.Worker(n)
		}
		return control.MapInst{Map: m}, nil

	case "D":
		if len(fields) != 3 {
			return nil, fmt.Errorf("D requires exactly bin and worker, got %q", line)
		}
		b, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("D: bin %q: %w", fields[1], err)
		}
		w, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("D: worker %q: %w", fields[2], err)
		}
		return control.MoveInst{Bin: bin.Id(b), Worker: bin.Worker(w)}, nil

	case "N":
		return control.NoOpInst{}, nil

	default:
		return nil, fmt.Errorf("unknown instruction tag %q", fields[0])
	}
}

// Write is the inverse of Parse, used by tests exercising round-trips.
func Write(w io.Writer, groups []Group) error {
	bw := bufio.NewWriter(w)
	for gi, g := range groups {
		if gi > 0 {
			if _, err := bw.WriteString("\n"); err != nil {
				return err
			}
		}
		for _, c := range g.Commands {
			line, err := formatInst(c.Inst)
			if err != nil {
				return err
			}
			if _, err := bw.WriteString(line + "\n"); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

func formatInst(inst control.Inst) (string, error) {
	switch v := inst.(type) {
	case control.MapInst:
		parts := make([]string, len(v.Map))
		for i, w := range v.Map {
			parts[i] = strconv.FormatUint(uint64(w), 10)
		}
		return "M " + strings.Join(parts, " "), nil
	case control.MoveInst:
		return fmt.Sprintf("D %d %d", v.Bin, v.Worker), nil
	case control.NoOpInst:
		return "N", nil
	default:
		return "", fmt.Errorf("planfile: unknown Inst type %T", inst)
	}
}
