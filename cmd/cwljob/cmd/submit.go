package cmd

import (
	"context"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"cwlclient/internal/jobspec"
	"cwlclient/pkg/backoff"
	"cwlclient/pkg/client"
)

var submitWait bool

var submitCmd = &cobra.Command{
	Use:   "submit <spec.yaml>",
	Short: "Create and run a job from a YAML job spec",
	Long: `Submit creates a job on the service, uploads the workflow and input
files named in the spec, and runs it. With --wait, submit polls the job
until it reaches a terminal state and exits non-zero unless it succeeded.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		specPath := args[0]
		spec, err := jobspec.Load(specPath)
		if err != nil {
			return err
		}

		srv, err := resolveService(cmd)
		if err != nil {
			return err
		}

		name := spec.Name
		if name == "" {
			name = "cwljob-" + uuid.NewString()
		}

		job, err := srv.CreateJob(cmd.Context(), name)
		if err != nil {
			return err
		}
		if err := spec.Apply(cmd.Context(), job, filepath.Dir(specPath)); err != nil {
			return err
		}

		id, err := job.Run(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Printf("Submitted job %s (%s)\n", name, id)

		if !submitWait {
			return nil
		}
		return waitForJob(cmd, job)
	},
}

// waitForJob polls the job until it reaches a terminal state, pacing polls
// with exponential backoff up to the configured cap.
func waitForJob(cmd *cobra.Command, job *client.Job) error {
	ctx := cmd.Context()
	pollCfg := &backoff.Config{Initial: cfg.PollInitial, Max: cfg.PollMax}

	for attempt := 1; ; attempt++ {
		state, err := job.State(ctx)
		if err != nil {
			return err
		}
		if state.Terminal() {
			cmd.Printf("Job %s finished: %s\n", job.Name(), state)
			if state != client.StateSuccess {
				return printFailureLog(ctx, cmd, job, state)
			}
			return nil
		}
		if err := backoff.Sleep(ctx, backoff.Exponential(attempt, pollCfg)); err != nil {
			return err
		}
	}
}

func printFailureLog(ctx context.Context, cmd *cobra.Command, job *client.Job, state client.State) error {
	log, err := job.Log(ctx)
	if err == nil && log != "" {
		cmd.PrintErrln(log)
	}
	return &jobFailedError{name: job.Name(), state: state}
}

type jobFailedError struct {
	name  string
	state client.State
}

func (e *jobFailedError) Error() string {
	return "job " + e.name + " ended in state " + string(e.state)
}

func init() {
	submitCmd.Flags().BoolVar(&submitWait, "wait", false, "poll until the job finishes")
	rootCmd.AddCommand(submitCmd)
}
