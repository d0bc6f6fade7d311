// cmd_serve.go - Server, Geraeteliste und Version
// Hauptfunktionen: RunServer, DevicesHandler, versionHandler
package cmd

import (
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/ollama/xcvm/api"
	"github.com/ollama/xcvm/envconfig"
	"github.com/ollama/xcvm/ml"
	"github.com/ollama/xcvm/ml/backend"
	"github.com/ollama/xcvm/server"
	"github.com/ollama/xcvm/version"
)

// RunServer - Startet den xcvm-Server
func RunServer(_ *cobra.Command, _ []string) error {
	ln, err := net.Listen("tcp", envconfig.Host().Host)
	if err != nil {
		return err
	}

	err = server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// DevicesHandler - Listet lokale oder entfernte Geraete
func DevicesHandler(cmd *cobra.Command, args []string) error {
	remote, err := cmd.Flags().GetBool("remote")
	if err != nil {
		return err
	}

	var devices []ml.DeviceInfo
	if remote {
		if err := checkServerHeartbeat(cmd, args); err != nil {
			return err
		}
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return err
		}
		resp, err := client.Devices(cmd.Context())
		if err != nil {
			return err
		}
		devices = resp.Devices
	} else {
		b, err := backend.FromEnvironment()
		if err != nil {
			return err
		}
		defer b.Close()
		devices = ml.DeviceInfos(b)
	}

	renderDevices(cmd.OutOrStdout(), devices)
	return nil
}

// versionHandler - Zeigt die Version an
func versionHandler(cmd *cobra.Command, _ []string) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return
	}

	serverVersion, err := client.Version(cmd.Context())
	if err != nil {
		fmt.Println("Warning: could not connect to a running xcvm instance")
	}

	if serverVersion != "" {
		fmt.Printf("xcvm version is %s\n", serverVersion)
	}

	if serverVersion != version.Version {
		fmt.Printf("Warning: client version is %s\n", version.Version)
	}
}
