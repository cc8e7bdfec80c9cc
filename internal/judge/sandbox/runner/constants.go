package runner

// Fixed file names deposited directly under a job's temp root (the host
// directory every run flavor bind-mounts into isolate at /temp), matching
// the original worker's naming convention so that dispatcher and checker
// scripts can be written once and reused unmodified across languages.
//
// StdinFileName, StdoutFileName, ReferenceOutputName, BinaryName,
// CheckerName, and ManagerName are exported because the session package
// must place its compiled artifacts and per-test-case files at these exact
// names before a run starts; inside the sandbox the runner addresses them by
// their /temp/<name> form.
const (
	StdinFileName       = "input.txt"
	StdoutFileName      = "output.txt"
	ReferenceOutputName = "diff_output.txt"
	BinaryName          = "main"
	CheckerName         = "checker"
	ManagerName         = "manager"

	metaFileName         = "main.log"
	execScriptName       = "exec.sh"
	execManagerScript    = "exec_man.sh"
	dispatcherScriptName = "run.judge.sh"
	checkerScriptName    = "checker.sh"
	checkerResultName    = "result.toml"
)

const (
	isolateBinary = "isolate"
	shellBinary   = "bash"

	checkerTimeLimitSeconds = 5.0
	checkerMemLimitKB       = 1048576
)

// sandboxTempRoot is the in-sandbox mountpoint every run flavor binds a
// job's temp directory to.
const sandboxTempRoot = "/temp"

// sandboxBoxRoot is the in-sandbox mountpoint for the per-run scratch box
// directory the runner creates for each isolate invocation.
const sandboxBoxRoot = "/box"
