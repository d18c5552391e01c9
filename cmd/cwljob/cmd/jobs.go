package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"cwlclient/pkg/apperrors"
	"cwlclient/pkg/client"
)

// findJob resolves a job argument as an id first, then as a name.
func findJob(cmd *cobra.Command, srv *client.Service, idOrName string) (*client.Job, error) {
	job, err := srv.GetJobByID(cmd.Context(), idOrName)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}
	return srv.GetJobByName(cmd.Context(), idOrName)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs on the service",
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, err := resolveService(cmd)
		if err != nil {
			return err
		}
		jobs, err := srv.ListJobs(cmd.Context())
		if err != nil {
			return err
		}
		for _, job := range jobs {
			state, err := job.State(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("%s\t%s\t%s\n", job.ID(), job.Name(), state)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <job>",
	Short: "Show a job's state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, err := resolveService(cmd)
		if err != nil {
			return err
		}
		job, err := findJob(cmd, srv, args[0])
		if err != nil {
			return err
		}
		state, err := job.State(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Println(state)
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs <job>",
	Short: "Print a job's log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, err := resolveService(cmd)
		if err != nil {
			return err
		}
		job, err := findJob(cmd, srv, args[0])
		if err != nil {
			return err
		}
		log, err := job.Log(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Print(log)
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <job>",
	Short: "Request cancellation of a job",
	Long: `Cancel asks the service to stop a job. Cancellation is asynchronous;
poll with status until the job reports Cancelled.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, err := resolveService(cmd)
		if err != nil {
			return err
		}
		job, err := findJob(cmd, srv, args[0])
		if err != nil {
			return err
		}
		if err := job.Cancel(cmd.Context()); err != nil {
			return err
		}
		cmd.Printf("Cancellation requested for %s\n", job.Name())
		return nil
	},
}

var waitCmd = &cobra.Command{
	Use:   "wait <job>",
	Short: "Wait until a job reaches a terminal state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, err := resolveService(cmd)
		if err != nil {
			return err
		}
		job, err := findJob(cmd, srv, args[0])
		if err != nil {
			return err
		}
		return waitForJob(cmd, job)
	},
}

var outputsDir string

var outputsCmd = &cobra.Command{
	Use:   "outputs <job>",
	Short: "Fetch a job's outputs",
	Long: `Outputs prints scalar outputs and saves file outputs into --dir,
named after their output. An empty result means the outputs are not
available yet.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, err := resolveService(cmd)
		if err != nil {
			return err
		}
		job, err := findJob(cmd, srv, args[0])
		if err != nil {
			return err
		}
		outputs, err := job.Outputs(cmd.Context())
		if err != nil {
			return err
		}
		if len(outputs) == 0 {
			cmd.Println("No outputs available yet")
			return nil
		}

		if err := os.MkdirAll(outputsDir, 0o755); err != nil {
			return err
		}
		for name, value := range outputs {
			switch v := value.(type) {
			case *client.OutputFile:
				dest := filepath.Join(outputsDir, name)
				if err := v.SaveAs(cmd.Context(), dest); err != nil {
					return err
				}
				cmd.Printf("%s -> %s\n", name, dest)
			case []*client.OutputFile:
				for i, f := range v {
					dest := filepath.Join(outputsDir, fmt.Sprintf("%s.%d", name, i))
					if err := f.SaveAs(cmd.Context(), dest); err != nil {
						return err
					}
					cmd.Printf("%s[%d] -> %s\n", name, i, dest)
				}
			default:
				cmd.Printf("%s = %v\n", name, v)
			}
		}
		return nil
	},
}

var destroyCmd = &cobra.Command{
	Use:   "destroy <job>",
	Short: "Delete a job and all its data from the service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, err := resolveService(cmd)
		if err != nil {
			return err
		}
		job, err := findJob(cmd, srv, args[0])
		if err != nil {
			return err
		}
		if err := srv.DestroyJob(cmd.Context(), job); err != nil {
			return err
		}
		cmd.Printf("Destroyed job %s\n", job.Name())
		return nil
	},
}

func init() {
	outputsCmd.Flags().StringVar(&outputsDir, "dir", ".", "directory to save file outputs into")
	rootCmd.AddCommand(listCmd, statusCmd, logsCmd, cancelCmd, waitCmd, outputsCmd, destroyCmd)
}
