package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"cwlclient/pkg/container"
)

var (
	upImage    string
	upUser     string
	upPassword string
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the service container",
}

var serviceUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Create and start a service container",
	RunE: func(cmd *cobra.Command, args []string) error {
		image := upImage
		if image == "" {
			image = cfg.Image
		}
		if image == "" {
			return fmt.Errorf("no service image given (use --image or set image in the config)")
		}

		manager, err := container.NewManager()
		if err != nil {
			return err
		}
		defer manager.Close()

		srv, err := manager.CreateService(cmd.Context(), cfg.ServiceName, cfg.Port, image, upUser, upPassword)
		if err != nil {
			return err
		}

		reg, err := openRegistry()
		if err != nil {
			return err
		}
		defer reg.Close()
		if err := reg.Save(cmd.Context(), cfg.ServiceName, srv.Ref()); err != nil {
			return err
		}

		cmd.Printf("Service %s is up on port %d\n", cfg.ServiceName, cfg.Port)
		return nil
	},
}

var serviceDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop and remove the service container",
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := container.NewManager()
		if err != nil {
			return err
		}
		defer manager.Close()

		if err := manager.Stop(cmd.Context(), cfg.ServiceName); err != nil {
			return err
		}
		if err := manager.Remove(cmd.Context(), cfg.ServiceName); err != nil {
			return err
		}

		reg, err := openRegistry()
		if err != nil {
			return err
		}
		defer reg.Close()
		if err := reg.Delete(cmd.Context(), cfg.ServiceName); err != nil {
			return err
		}

		cmd.Printf("Service %s removed\n", cfg.ServiceName)
		return nil
	},
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the service container's status",
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := container.NewManager()
		if err != nil {
			return err
		}
		defer manager.Close()

		status, err := manager.Status(cmd.Context(), cfg.ServiceName)
		if err != nil {
			return err
		}
		cmd.Printf("%s: %s\n", cfg.ServiceName, status)
		return nil
	},
}

var serviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered services",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		defer reg.Close()

		refs, err := reg.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(refs) == 0 {
			cmd.Println("No registered services")
			return nil
		}
		for name, ref := range refs {
			cmd.Printf("%s\t%s:%d\n", name, ref.Host, ref.Port)
		}
		return nil
	},
}

func init() {
	serviceUpCmd.Flags().StringVar(&upImage, "image", "", "service image to run")
	serviceUpCmd.Flags().StringVar(&upUser, "user", "", "user name for the compute resource")
	serviceUpCmd.Flags().StringVar(&upPassword, "password", "", "password for the compute resource")

	serviceCmd.AddCommand(serviceUpCmd, serviceDownCmd, serviceStatusCmd, serviceListCmd)
	rootCmd.AddCommand(serviceCmd)
}
