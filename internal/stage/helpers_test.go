package stage

import "github.com/bft-labs/edgevisor/internal/ports"

func portsCommand(script string) ports.Command {
	return ports.Command{Service: "svc", Stage: "run", Script: script}
}
