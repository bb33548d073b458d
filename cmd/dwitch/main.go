// Command dwitch is the operator CLI (spec §6 Operator CLI surface): it
// dials a daemon's control port, completes the handshake advertising the
// reserved CONFIGURATION_SWITCH_ID, and issues exactly one VRF mutation
// or query per invocation.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/aytixel/dwitch/internal/connlayer"
	"github.com/aytixel/dwitch/internal/protocol"
)

var version = "dev"

const defaultTimeout = 5 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	os.Args = append(os.Args[:1], os.Args[2:]...)

	var err error
	switch cmd {
	case "vrf":
		err = cmdVrf()
	case "version":
		fmt.Printf("dwitch %s\n", version)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: dwitch vrf <subcommand> --addr <daemon-addr> [options]

Subcommands:
  list                         list all known VRFs
  create <id> <name> [members...]   create a VRF
  delete (--id <id>|--name <name>)  delete a VRF
  member (--id <id>|--name <name>) add|remove <members...>

Commands:
  vrf      VRF control-plane operations
  version  show version
  help     show this help`)
}

func cmdVrf() error {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	sub := os.Args[1]
	os.Args = append(os.Args[:1], os.Args[2:]...)

	switch sub {
	case "list":
		return cmdVrfList()
	case "create":
		return cmdVrfCreate()
	case "delete":
		return cmdVrfDelete()
	case "member":
		return cmdVrfMember()
	default:
		printUsage()
		os.Exit(1)
		return nil
	}
}

func cmdVrfList() error {
	fs := flag.NewFlagSet("vrf list", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:7946", "daemon control address")
	fs.Parse(os.Args[1:])

	c, err := connlayer.Dial(*addr, defaultTimeout)
	if err != nil {
		return err
	}
	defer c.Close()

	vrfs, err := c.List()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tMEMBERS")
	for _, v := range vrfs {
		fmt.Fprintf(w, "%d\t%s\t%s\n", v.ID, v.Name, formatMembers(v.MemberList()))
	}
	return w.Flush()
}

func cmdVrfCreate() error {
	fs := flag.NewFlagSet("vrf create", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:7946", "daemon control address")
	fs.Parse(os.Args[1:])

	args := fs.Args()
	if len(args) < 2 {
		return fmt.Errorf("usage: vrf create <id> <name> [members...]")
	}
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid vrf id %q: %w", args[0], err)
	}
	name := args[1]
	members, err := parseMembers(args[2:])
	if err != nil {
		return err
	}

	memberSet := make(map[protocol.SwitchID]struct{}, len(members))
	for _, m := range members {
		memberSet[m] = struct{}{}
	}

	c, err := connlayer.Dial(*addr, defaultTimeout)
	if err != nil {
		return err
	}
	defer c.Close()

	vrf := protocol.Vrf{ID: protocol.VrfID(id), Name: name, Members: memberSet}
	if err := c.SendAction(protocol.VrfActionCreate{Vrf: vrf}); err != nil {
		return err
	}
	fmt.Printf("create sent for vrf %d (%s)\n", id, name)
	return nil
}

func cmdVrfDelete() error {
	fs := flag.NewFlagSet("vrf delete", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:7946", "daemon control address")
	idFlag := fs.Uint("id", 0, "vrf id")
	nameFlag := fs.String("name", "", "vrf name")
	fs.Parse(os.Args[1:])

	c, err := connlayer.Dial(*addr, defaultTimeout)
	if err != nil {
		return err
	}
	defer c.Close()

	id, err := resolveID(c, *idFlag, *nameFlag)
	if err != nil {
		return err
	}

	if err := c.SendAction(protocol.VrfActionDelete{ID: id}); err != nil {
		return err
	}
	fmt.Printf("delete sent for vrf %d\n", id)
	return nil
}

func cmdVrfMember() error {
	fs := flag.NewFlagSet("vrf member", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:7946", "daemon control address")
	idFlag := fs.Uint("id", 0, "vrf id")
	nameFlag := fs.String("name", "", "vrf name")
	fs.Parse(os.Args[1:])

	args := fs.Args()
	if len(args) < 2 {
		return fmt.Errorf("usage: vrf member (--id|--name) add|remove <members...>")
	}
	action := args[0]
	members, err := parseMembers(args[1:])
	if err != nil {
		return err
	}

	c, err := connlayer.Dial(*addr, defaultTimeout)
	if err != nil {
		return err
	}
	defer c.Close()

	id, err := resolveID(c, *idFlag, *nameFlag)
	if err != nil {
		return err
	}

	switch action {
	case "add":
		err = c.SendAction(protocol.VrfActionAddMember{ID: id, Members: members})
	case "remove":
		err = c.SendAction(protocol.VrfActionRemoveMember{ID: id, Members: members})
	default:
		return fmt.Errorf("unknown member action %q, expected add or remove", action)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s sent for vrf %d, members %s\n", action, id, formatMembers(members))
	return nil
}

// resolveID returns idFlag directly if set, otherwise resolves nameFlag
// to an id via a List request (spec §6: "resolve name by a preceding
// List if needed").
func resolveID(c *connlayer.OperatorClient, idFlag uint, nameFlag string) (protocol.VrfID, error) {
	if idFlag != 0 {
		return protocol.VrfID(idFlag), nil
	}
	if nameFlag == "" {
		return 0, fmt.Errorf("either --id or --name is required")
	}
	vrfs, err := c.List()
	if err != nil {
		return 0, err
	}
	for _, v := range vrfs {
		if v.Name == nameFlag {
			return v.ID, nil
		}
	}
	return 0, fmt.Errorf("no vrf named %q", nameFlag)
}

func parseMembers(args []string) ([]protocol.SwitchID, error) {
	out := make([]protocol.SwitchID, 0, len(args))
	for _, a := range args {
		n, err := strconv.ParseUint(a, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid member switch id %q: %w", a, err)
		}
		out = append(out, protocol.SwitchID(n))
	}
	return out, nil
}

func formatMembers(members []protocol.SwitchID) string {
	s := ""
	for i, m := range members {
		if i > 0 {
			s += ","
		}
		s += strconv.FormatUint(uint64(m), 10)
	}
	return s
}
