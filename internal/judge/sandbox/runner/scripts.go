package runner

// execScriptTemplate wraps a single-program exec command so it can be
// referenced as a fixed filename regardless of language.
const execScriptTemplate = `#!/bin/bash
exec %s
`

// dispatcherScript is copied into every Interactive Run's box directory
// verbatim. It wires the program and manager together over a pair of named
// pipes. Both sides are backgrounded and started together: the manager
// first, piped through tee so a copy of everything it writes also reaches
// this script's own stdout (captured by the runner and persisted as the
// run's output for the checker), and the program second, reading the
// manager's replies as they arrive. Starting the program in the foreground
// before the manager exists would deadlock it forever on the empty
// mgr_to_prog pipe.
const dispatcherScript = `#!/bin/bash
set -u
mkfifo /box/prog_to_mgr /box/mgr_to_prog
chmod 666 /box/prog_to_mgr /box/mgr_to_prog

{ /box/exec_man.sh < /box/prog_to_mgr 2> /box/manager.err; echo $? > /box/manager.ret; } | tee /box/mgr_to_prog &
manager_pid=$!

/box/exec.sh < /box/mgr_to_prog > /box/prog_to_mgr 2> /box/grader.err &
prog_pid=$!

wait $prog_pid
echo $? > /box/grader.ret

wait $manager_pid

rm -f /box/prog_to_mgr /box/mgr_to_prog
`

// checkerScript invokes the checker with the temp-mounted input, reference
// output, and produced output (in that argument order), then leaves a verdict in box-relative
// result.toml. A checker that wants to report partial credit writes
// result.toml itself (outcome plus an optional points field); the trailing
// fallback only synthesizes one from the exit code when the checker didn't
// produce one.
const checkerScript = `#!/bin/bash
set -u
%s /temp/%s /temp/%s /temp/%s > ./checker_stdout.txt 2> ./checker_stderr.txt
status=$?
if [ ! -s ./%s ]; then
	if [ "$status" -eq 0 ]; then
		echo 'outcome = "ok"' > ./%s
	else
		echo 'outcome = "wrong-answer"' > ./%s
	fi
fi
`
