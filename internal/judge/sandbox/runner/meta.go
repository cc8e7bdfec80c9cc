package runner

import (
	"bufio"
	"strconv"
	"strings"

	"judgeworker/internal/judge/sandbox/result"
	judgeerrors "judgeworker/pkg/errors"
)

// parseMeta parses an isolate --meta file's key:value lines into a Run.
// Unknown keys are ignored; a missing status line means the process exited
// cleanly, represented as a nil Status rather than an error. A line with no
// ':' is malformed and fatal for the run.
func parseMeta(raw string) (result.Run, error) {
	var r result.Run
	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			return result.Run{}, judgeerrors.Newf(judgeerrors.SandboxMetaInvalid, "malformed meta line %q", line)
		}
		switch key {
		case "time":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return result.Run{}, judgeerrors.Wrapf(err, judgeerrors.SandboxMetaInvalid, "parse time")
			}
			r.TimeSeconds = v
		case "time-wall":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return result.Run{}, judgeerrors.Wrapf(err, judgeerrors.SandboxMetaInvalid, "parse time-wall")
			}
			r.WallSeconds = v
		case "status":
			status := result.ParseStatus(value)
			r.Status = &status
		case "cg-mem":
			v, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return result.Run{}, judgeerrors.Wrapf(err, judgeerrors.SandboxMetaInvalid, "parse cg-mem")
			}
			r.CgMemKB = v
		case "exitcode":
			v, err := strconv.Atoi(value)
			if err != nil {
				return result.Run{}, judgeerrors.Wrapf(err, judgeerrors.SandboxMetaInvalid, "parse exitcode")
			}
			r.ExitCode = v
		case "exitsig":
			v, err := strconv.Atoi(value)
			if err != nil {
				return result.Run{}, judgeerrors.Wrapf(err, judgeerrors.SandboxMetaInvalid, "parse exitsig")
			}
			r.ExitSignal = v
		case "cg-oom-killed":
			r.OOMKilled = value == "1"
		case "csw-voluntary":
			v, err := strconv.Atoi(value)
			if err == nil {
				r.CswVoluntary = v
			}
		case "csw-forced":
			v, err := strconv.Atoi(value)
			if err == nil {
				r.CswForced = v
			}
		case "message":
			r.Message = value
		}
	}
	if err := scanner.Err(); err != nil {
		return result.Run{}, judgeerrors.Wrapf(err, judgeerrors.SandboxMetaInvalid, "scan meta")
	}
	return r, nil
}
