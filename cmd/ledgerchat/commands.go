package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v3"

	"github.com/charadev96/ledgerchat/internal/client/access"
	"github.com/charadev96/ledgerchat/internal/client/channel"
	clientdomain "github.com/charadev96/ledgerchat/internal/client/domain"
	"github.com/charadev96/ledgerchat/internal/client/wallet"
	"github.com/charadev96/ledgerchat/internal/server"
	"github.com/charadev96/ledgerchat/internal/shared"
	shareddomain "github.com/charadev96/ledgerchat/internal/shared/domain"
	"github.com/charadev96/ledgerchat/internal/shared/log"
)

func argIdentity(cmd *cli.Command, i int) (shareddomain.Identity, error) {
	s := cmd.Args().Get(i)
	if s == "" {
		return shareddomain.Identity{}, fmt.Errorf("missing address argument")
	}
	return shareddomain.ParseIdentity(s)
}

func argGroup(cmd *cli.Command, i int) (uint64, error) {
	s := cmd.Args().Get(i)
	if s == "" {
		return 0, fmt.Errorf("missing group id argument")
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid group id %q: %w", s, err)
	}
	return id, nil
}

// argText joins the arguments from i on into the message content.
func argText(cmd *cli.Command, i int) string {
	args := cmd.Args().Slice()
	if i >= len(args) {
		return ""
	}
	return strings.Join(args[i:], " ")
}

func printMessages(e *env, msgs []shareddomain.Message) {
	if len(msgs) == 0 {
		fmt.Println("no messages yet")
		return
	}
	for _, m := range msgs {
		printMessage(e, m)
	}
}

func printMessage(e *env, m shareddomain.Message) {
	fmt.Printf("%-14s %s: %s\n", humanize.Time(m.Time()), e.client.DisplayName(m.Sender), m.Content)
}

func printReceipt(rcpt shareddomain.Receipt) {
	fmt.Printf("accepted in %s\n", rcpt.TxHash.Hex())
}

func signInCommand() *cli.Command {
	return &cli.Command{
		Name:  "signin",
		Usage: "sign a fresh credential for the local identity",
		Action: withEnv(func(ctx context.Context, _ *cli.Command, e *env) error {
			if err := e.client.SignIn(ctx); err != nil {
				return err
			}
			fmt.Printf("signed in as %s\n", e.client.Identity().Hex())
			return nil
		}),
	}
}

func signOutCommand() *cli.Command {
	return &cli.Command{
		Name:  "signout",
		Usage: "forget the stored credential",
		Action: withEnv(func(_ context.Context, _ *cli.Command, e *env) error {
			return e.client.SignOut()
		}),
	}
}

func whoamiCommand() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "print the local identity",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(ctx, cmd)
			if err != nil {
				return err
			}
			logger := log.New("client")
			key, err := wallet.EnsureSigningKey(cfg.KeyFile, &logger)
			if err != nil {
				return err
			}
			fmt.Println((&wallet.KeySigner{Key: key}).Identity().Hex())
			return nil
		},
	}
}

func dmCommand() *cli.Command {
	return &cli.Command{
		Name:  "dm",
		Usage: "direct messages",
		Commands: []*cli.Command{
			{
				Name:      "send",
				Usage:     "send a direct message",
				ArgsUsage: "<address> <message>",
				Action: withEnv(func(ctx context.Context, cmd *cli.Command, e *env) error {
					to, err := argIdentity(cmd, 0)
					if err != nil {
						return err
					}
					rcpt, err := e.client.Resolver.SendDirect(ctx, to, argText(cmd, 1))
					if err != nil {
						return err
					}
					printReceipt(rcpt)
					return nil
				}),
			},
			{
				Name:      "read",
				Usage:     "print the conversation with an address",
				ArgsUsage: "<address>",
				Action: withEnv(func(ctx context.Context, cmd *cli.Command, e *env) error {
					other, err := argIdentity(cmd, 0)
					if err != nil {
						return err
					}
					msgs, err := e.client.Resolver.DirectHistory(ctx, other)
					if err != nil {
						return err
					}
					printMessages(e, msgs)
					return nil
				}),
			},
			{
				Name:  "contacts",
				Usage: "list addresses with a direct conversation",
				Action: withEnv(func(ctx context.Context, _ *cli.Command, e *env) error {
					contacts, err := e.client.Resolver.ListDirectContacts(ctx)
					if err != nil {
						return err
					}
					for _, c := range contacts {
						fmt.Printf("%s  %s\n", c.Hex(), e.client.DisplayName(c))
					}
					return nil
				}),
			},
		},
	}
}

func groupCommand() *cli.Command {
	return &cli.Command{
		Name:  "group",
		Usage: "groups and memberships",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list existing groups",
				Action: withEnv(func(ctx context.Context, _ *cli.Command, e *env) error {
					groups, err := e.client.Resolver.Groups(ctx)
					if err != nil {
						return err
					}
					self := e.client.Identity()
					for _, g := range groups {
						mark := " "
						if g.HasMember(self) {
							mark = "*"
						}
						fmt.Printf("%s %-4d %-24s %d members, requires %s of %s on chain %d\n",
							mark, g.ID, g.Name, len(g.Members),
							channel.FormatAmount(g.Criteria.RequiredAmount),
							shareddomain.ShortIdentity(g.Criteria.TokenAddress), g.Criteria.ChainID,
						)
					}
					return nil
				}),
			},
			{
				Name:  "create",
				Usage: "create a group gated by a token balance",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "token", Usage: "token contract address", Required: true},
					&cli.StringFlag{Name: "amount", Usage: "required token amount", Value: "1"},
					&cli.StringFlag{Name: "chain-id", Usage: "chain of the token (default: network chain)"},
				},
				ArgsUsage: "<name>",
				Action: withEnv(func(ctx context.Context, cmd *cli.Command, e *env) error {
					token, err := shareddomain.ParseIdentity(cmd.String("token"))
					if err != nil {
						return shareddomain.ErrInvalidTokenAddress
					}
					amount, err := channel.ParseAmount(cmd.String("amount"))
					if err != nil {
						return err
					}
					chainID := e.network.ChainID
					if cmd.IsSet("chain-id") {
						if chainID, err = strconv.ParseUint(cmd.String("chain-id"), 0, 64); err != nil {
							return fmt.Errorf("invalid chain id: %w", err)
						}
					}
					rcpt, err := e.client.Resolver.CreateGroup(ctx, shareddomain.NewGroup{
						Name: argText(cmd, 0),
						Criteria: shareddomain.GroupCriteria{
							ChainID:        chainID,
							TokenAddress:   token,
							RequiredAmount: amount,
						},
					})
					if err != nil {
						return err
					}
					fmt.Printf("created group %d\n", rcpt.GroupID)
					printReceipt(rcpt)
					return nil
				}),
			},
			{
				Name:      "status",
				Usage:     "show the membership state of the local identity",
				ArgsUsage: "<group>",
				Action: withEnv(func(ctx context.Context, cmd *cli.Command, e *env) error {
					gid, err := argGroup(cmd, 0)
					if err != nil {
						return err
					}
					st, err := e.client.Gate.State(ctx, gid, e.client.Identity())
					if err != nil {
						return err
					}
					fmt.Println(st)
					return nil
				}),
			},
			{
				Name:      "join",
				Usage:     "request access to a group",
				ArgsUsage: "<group>",
				Action: withEnv(func(ctx context.Context, cmd *cli.Command, e *env) error {
					gid, err := argGroup(cmd, 0)
					if err != nil {
						return err
					}
					rcpt, err := e.client.Gate.RequestAccess(ctx, gid)
					if err != nil {
						return err
					}
					fmt.Println("access requested, waiting for approval")
					printReceipt(rcpt)
					return nil
				}),
			},
			{
				Name:      "members",
				Usage:     "list members and pending requests",
				ArgsUsage: "<group>",
				Action: withEnv(func(ctx context.Context, cmd *cli.Command, e *env) error {
					gid, err := argGroup(cmd, 0)
					if err != nil {
						return err
					}
					details, err := e.client.Resolver.GroupDetails(ctx, gid)
					if err != nil {
						return err
					}
					pending, err := e.client.Resolver.PendingMembers(ctx, gid)
					if err != nil {
						return err
					}
					fmt.Printf("%s\n", details.Name)
					for _, m := range details.Members {
						fmt.Printf("  member   %s  %s\n", m.Hex(), e.client.DisplayName(m))
					}
					for _, m := range pending {
						fmt.Printf("  pending  %s  %s\n", m.Hex(), e.client.DisplayName(m))
					}
					return nil
				}),
			},
			{
				Name:      "add",
				Usage:     "admit a pending identity",
				ArgsUsage: "<group> <address>",
				Action: withEnv(func(ctx context.Context, cmd *cli.Command, e *env) error {
					gid, err := argGroup(cmd, 0)
					if err != nil {
						return err
					}
					member, err := argIdentity(cmd, 1)
					if err != nil {
						return shareddomain.ErrInvalidMemberAddress
					}
					rcpt, err := e.client.Resolver.AddMember(ctx, gid, member)
					if err != nil {
						return err
					}
					printReceipt(rcpt)
					return nil
				}),
			},
			{
				Name:      "remove",
				Usage:     "remove a member or reject a pending request",
				ArgsUsage: "<group> <address>",
				Action: withEnv(func(ctx context.Context, cmd *cli.Command, e *env) error {
					gid, err := argGroup(cmd, 0)
					if err != nil {
						return err
					}
					member, err := argIdentity(cmd, 1)
					if err != nil {
						return shareddomain.ErrInvalidMemberAddress
					}
					rcpt, err := e.client.Resolver.RemoveMember(ctx, gid, member)
					if err != nil {
						return err
					}
					printReceipt(rcpt)
					return nil
				}),
			},
			{
				Name:      "send",
				Usage:     "send a message to a group",
				ArgsUsage: "<group> <message>",
				Action: withEnv(func(ctx context.Context, cmd *cli.Command, e *env) error {
					gid, err := argGroup(cmd, 0)
					if err != nil {
						return err
					}
					rcpt, err := e.client.Resolver.SendGroup(ctx, gid, argText(cmd, 1))
					if err != nil {
						return err
					}
					printReceipt(rcpt)
					return nil
				}),
			},
			{
				Name:      "read",
				Usage:     "print the history of a group",
				ArgsUsage: "<group>",
				Action: withEnv(func(ctx context.Context, cmd *cli.Command, e *env) error {
					gid, err := argGroup(cmd, 0)
					if err != nil {
						return err
					}
					st, err := e.client.Gate.State(ctx, gid, e.client.Identity())
					if err != nil {
						return err
					}
					if st != access.StateMember {
						return fmt.Errorf("you are %s in group %d: %w", st, gid, shareddomain.ErrNotGroupMember)
					}
					msgs, err := e.client.Resolver.GroupHistory(ctx, gid)
					if err != nil {
						return err
					}
					printMessages(e, msgs)
					return nil
				}),
			},
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "follow a conversation until interrupted",
		ArgsUsage: "dm <address> | group <id>",
		Action: withEnv(func(ctx context.Context, cmd *cli.Command, e *env) error {
			var view clientdomain.View
			switch cmd.Args().Get(0) {
			case "dm":
				view = clientdomain.ViewDirect
			case "group":
				view = clientdomain.ViewGroup
			default:
				return fmt.Errorf("expected dm or group, got %q", cmd.Args().Get(0))
			}
			if err := e.client.Select(ctx, clientdomain.NewSelection(view, cmd.Args().Get(1))); err != nil {
				return err
			}
			e.client.Start(ctx)
			return follow(ctx, e)
		}),
	}
}

// follow prints new messages and notices of the selected channel until ctx
// is done.
func follow(ctx context.Context, e *env) error {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	var (
		shown  int
		notice string
		state  access.State
	)
	for {
		snap := e.client.Snapshot()
		if snap.Channel.Kind == clientdomain.ChannelGroup && snap.Access != state {
			state = snap.Access
			if state != access.StateUnknown {
				fmt.Printf("-- membership: %s\n", state)
			}
		}
		if n := snap.Notice(); n != notice {
			notice = n
			if n != "" {
				fmt.Printf("-- %s\n", n)
			}
		}
		if len(snap.Messages) < shown {
			shown = 0
		}
		for _, m := range snap.Messages[shown:] {
			printMessage(e, m)
		}
		shown = len(snap.Messages)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func nameCommand() *cli.Command {
	return &cli.Command{
		Name:  "name",
		Usage: "local display names",
		Commands: []*cli.Command{
			{
				Name:      "set",
				Usage:     "set a display name, an empty name clears it",
				ArgsUsage: "<address> [name]",
				Action: withEnv(func(_ context.Context, cmd *cli.Command, e *env) error {
					id, err := argIdentity(cmd, 0)
					if err != nil {
						return err
					}
					return e.client.SetDisplayName(id, argText(cmd, 1))
				}),
			},
		},
	}
}

func ledgerCommand() *cli.Command {
	return &cli.Command{
		Name:  "ledger",
		Usage: "operate the local ledger",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the membership approver until interrupted",
				Action: withLocal(func(ctx context.Context, e *env) error {
					logger := log.New("approver")
					node := &server.Node{
						Ledger: e.local,
						Approver: server.ApproverConfig{
							Enabled: true,
							Approver: server.Approver{
								Policy:   server.AcceptAll,
								Interval: e.cfg.ApproveInterval,
								Logger:   &logger,
							},
						},
						Logger: &logger,
					}
					return node.Serve(ctx)
				}),
			},
			{
				Name:  "approve",
				Usage: "admit every pending request once",
				Action: withLocal(func(ctx context.Context, e *env) error {
					a := &server.Approver{Ledger: e.local, Policy: server.AcceptAll}
					n, err := a.ApproveOnce(ctx)
					fmt.Printf("admitted %d pending requests\n", n)
					return err
				}),
			},
		},
	}
}

func withLocal(fn func(ctx context.Context, e *env) error) cli.ActionFunc {
	return withEnv(func(ctx context.Context, _ *cli.Command, e *env) error {
		if e.local == nil {
			return fmt.Errorf("the ledger commands need backend %q", shared.BackendLocal)
		}
		return fn(ctx, e)
	})
}

func networkCommand() *cli.Command {
	return &cli.Command{
		Name:  "network",
		Usage: "ledger deployments",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list known networks",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(ctx, cmd)
					if err != nil {
						return err
					}
					reg := &shared.NetworkRegistryTOML{FilePath: cfg.NetworksFile}
					if err := reg.LoadFile(); err != nil {
						return err
					}
					for _, name := range reg.Names() {
						n, _ := reg.Get(name)
						mark := " "
						if name == cfg.Network {
							mark = "*"
						}
						fmt.Printf("%s %-20s chain %-8d %s %s\n", mark, name, n.ChainID, n.Contract.Hex(), n.RPC)
					}
					return nil
				},
			},
			{
				Name:      "add",
				Usage:     "add or replace a network",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "rpc", Usage: "JSON-RPC endpoint", Required: true},
					&cli.StringFlag{Name: "chain-id", Usage: "chain id", Required: true},
					&cli.StringFlag{Name: "contract", Usage: "messaging contract address", Required: true},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					name := cmd.Args().First()
					if name == "" {
						return fmt.Errorf("missing network name")
					}
					chainID, err := strconv.ParseUint(cmd.String("chain-id"), 0, 64)
					if err != nil {
						return fmt.Errorf("invalid chain id: %w", err)
					}
					if !shareddomain.IsValidIdentity(cmd.String("contract")) {
						return fmt.Errorf("invalid contract address %q", cmd.String("contract"))
					}
					cfg, err := loadConfig(ctx, cmd)
					if err != nil {
						return err
					}
					reg := &shared.NetworkRegistryTOML{FilePath: cfg.NetworksFile}
					if err := reg.LoadFile(); err != nil {
						return err
					}
					reg.Set(name, shared.NetworkInfo{
						RPC:      cmd.String("rpc"),
						ChainID:  chainID,
						Contract: common.HexToAddress(cmd.String("contract")),
					})
					if err := reg.SaveFile(); err != nil {
						return err
					}
					fmt.Fprintf(os.Stderr, "saved network %s\n", name)
					return nil
				},
			},
		},
	}
}
