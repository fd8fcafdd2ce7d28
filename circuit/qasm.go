package circuit

import (
	"bufio"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	qasmHeader = "OPENQASM 2.0;"
	qasmName   = "// name "
)

var (
	qasmOps = map[Op]string{
		OpH:       "h",
		OpX:       "x",
		OpS:       "s",
		OpSdg:     "sdg",
		OpRx:      "rx",
		OpRy:      "ry",
		OpRz:      "rz",
		OpXXPhase: "rxx",
		OpYYPhase: "ryy",
		OpZZPhase: "rzz",
		OpBarrier: "barrier",
	}
	qasmGates = func() map[string]Op {
		m := make(map[string]Op, len(qasmOps))
		for op, name := range qasmOps {
			m[name] = op
		}
		return m
	}()

	qubitRe   = regexp.MustCompile(`^q\[(\d+)\]$`)
	measureRe = regexp.MustCompile(`^measure\s+q\[(\d+)\]\s*->\s*c\[(\d+)\]$`)
	regRe     = regexp.MustCompile(`^([qc])reg\s+([qc])\[(\d+)\]$`)
	gateRe    = regexp.MustCompile(`^([a-z]+)(?:\(([^)]*)\))?\s+(.+)$`)
)

// QASM serializes c to OpenQASM 2.0.
// Angles are written as multiples of pi, in radians as OpenQASM expects.
func QASM(c *Circuit) string {
	var b strings.Builder
	if c.Name != "" {
		b.WriteString(qasmName + c.Name + "\n")
	}
	b.WriteString(qasmHeader + "\n")
	b.WriteString("include \"qelib1.inc\";\n")
	fmt.Fprintf(&b, "qreg q[%d];\n", c.N)
	fmt.Fprintf(&b, "creg c[%d];\n", c.N)
	for _, g := range c.Gates {
		if g.Op == OpMeasure {
			fmt.Fprintf(&b, "measure q[%d] -> c[%d];\n", g.Qubits[0], g.Qubits[0])
			continue
		}
		b.WriteString(qasmOps[g.Op])
		if g.Op.Rotation() {
			fmt.Fprintf(&b, "(%s*pi)", strconv.FormatFloat(g.Angle, 'g', -1, 64))
		}
		args := make([]string, 0, len(g.Qubits))
		for _, q := range g.Qubits {
			args = append(args, fmt.Sprintf("q[%d]", q))
		}
		b.WriteString(" " + strings.Join(args, ",") + ";\n")
	}
	return b.String()
}

// ParseQASM reads the subset of OpenQASM 2.0 written by QASM.
func ParseQASM(s string) (*Circuit, error) {
	var c *Circuit
	var name string
	scanner := bufio.NewScanner(strings.NewReader(s))
	var lineNo int
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if n, ok := strings.CutPrefix(line, qasmName); ok {
			name = strings.TrimSpace(n)
			continue
		}
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		line, ok := strings.CutSuffix(line, ";")
		if !ok {
			return nil, errors.Errorf("%d missing semicolon %q", lineNo, line)
		}
		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, "OPENQASM"):
			if line+";" != qasmHeader {
				return nil, errors.Errorf("%d unsupported version %q", lineNo, line)
			}
			continue
		case strings.HasPrefix(line, "include"):
			continue
		}

		if m := regRe.FindStringSubmatch(line); m != nil {
			if m[1] != m[2] {
				return nil, errors.Errorf("%d register name %q", lineNo, line)
			}
			size, err := strconv.Atoi(m[3])
			if err != nil {
				return nil, errors.Wrap(err, fmt.Sprintf("%d", lineNo))
			}
			switch {
			case m[1] == "q":
				if c != nil {
					return nil, errors.Errorf("%d multiple quantum registers", lineNo)
				}
				c = New(size)
			case c == nil || size != c.N:
				return nil, errors.Errorf("%d classical register %q", lineNo, line)
			}
			continue
		}
		if c == nil {
			return nil, errors.Errorf("%d gate before qreg %q", lineNo, line)
		}

		if m := measureRe.FindStringSubmatch(line); m != nil {
			if m[1] != m[2] {
				return nil, errors.Errorf("%d measure into a different bit %q", lineNo, line)
			}
			q, err := qubitIndex(c, m[1])
			if err != nil {
				return nil, errors.Wrap(err, fmt.Sprintf("%d", lineNo))
			}
			c.Measure(q)
			continue
		}

		if err := parseGate(c, line); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%d", lineNo))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if c == nil {
		return nil, errors.Errorf("no qreg")
	}
	c.Name = name
	return c, nil
}

func parseGate(c *Circuit, line string) error {
	m := gateRe.FindStringSubmatch(line)
	if m == nil {
		return errors.Errorf("%q", line)
	}
	op, ok := qasmGates[m[1]]
	if !ok {
		return errors.Errorf("unknown gate %q", line)
	}

	var angle float64
	switch {
	case op.Rotation():
		if m[2] == "" {
			return errors.Errorf("missing angle %q", line)
		}
		var err error
		angle, err = parseAngle(m[2])
		if err != nil {
			return errors.Wrap(err, line)
		}
	case m[2] != "":
		return errors.Errorf("unexpected parameter %q", line)
	}

	var qubits []int
	for _, arg := range strings.Split(m[3], ",") {
		qm := qubitRe.FindStringSubmatch(strings.TrimSpace(arg))
		if qm == nil {
			return errors.Errorf("argument %q", arg)
		}
		q, err := qubitIndex(c, qm[1])
		if err != nil {
			return errors.Wrap(err, "")
		}
		qubits = append(qubits, q)
	}

	arity := 1
	switch op {
	case OpXXPhase, OpYYPhase, OpZZPhase:
		arity = 2
	case OpBarrier:
		arity = len(qubits)
	}
	if len(qubits) != arity {
		return errors.Errorf("%s takes %d qubits %q", op, arity, line)
	}
	for i, q := range qubits {
		for _, p := range qubits[:i] {
			if p == q {
				return errors.Errorf("repeated qubit %q", line)
			}
		}
	}
	c.add(op, angle, qubits...)
	return nil
}

// parseAngle parses an angle in radians and returns it in half-turns.
// Accepted forms are a number, pi, a*pi, pi*a and pi/a.
func parseAngle(s string) (float64, error) {
	s = strings.ReplaceAll(s, " ", "")
	sign := 1.0
	if rest, ok := strings.CutPrefix(s, "-"); ok {
		sign, s = -1, rest
	}

	switch {
	case s == "pi":
		return sign, nil
	case strings.HasSuffix(s, "*pi"):
		a, err := strconv.ParseFloat(strings.TrimSuffix(s, "*pi"), 64)
		if err != nil {
			return 0, errors.Wrap(err, "")
		}
		return sign * a, nil
	case strings.HasPrefix(s, "pi*"):
		a, err := strconv.ParseFloat(strings.TrimPrefix(s, "pi*"), 64)
		if err != nil {
			return 0, errors.Wrap(err, "")
		}
		return sign * a, nil
	case strings.HasPrefix(s, "pi/"):
		a, err := strconv.ParseFloat(strings.TrimPrefix(s, "pi/"), 64)
		if err != nil {
			return 0, errors.Wrap(err, "")
		}
		return sign / a, nil
	}
	r, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	return sign * r / math.Pi, nil
}

func qubitIndex(c *Circuit, s string) (int, error) {
	q, err := strconv.Atoi(s)
	if err != nil {
		return -1, errors.Wrap(err, "")
	}
	if q >= c.N {
		return -1, errors.Errorf("qubit %d out of range %d", q, c.N)
	}
	return q, nil
}
