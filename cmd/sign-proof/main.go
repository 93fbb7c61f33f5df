package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"go-bridge/internal/clients"
	"go-bridge/internal/config"
	"go-bridge/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

func main() {
	var configPath string
	root := &cobra.Command{
		Use:          "sign-proof",
		Short:        "Devnet tooling: fetch or forge guardian-signed relay proofs",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	root.AddCommand(observeCommand(&configPath), attestCommand(&configPath))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// observeCommand asks a running devnet relay (relay.serveDevnet) for the proof of a published message
func observeCommand(configPath *string) *cobra.Command {
	var (
		chain    uint16
		emitter  string
		sequence uint64
	)
	c := &cobra.Command{
		Use:   "observe",
		Short: "Prints the signed proof of a message published on the devnet relay",
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.NATS.URL == "" {
				return errors.New("nats.url is required to reach the devnet relay")
			}
			if chain == 0 {
				chain = cfg.Bridge.ExternalChainID
			}
			if emitter == "" {
				emitter = cfg.Bridge.EmitterAddress
			}
			emitterAddr, err := clients.ParseEmitter(emitter)
			if err != nil {
				return err
			}

			natsClient, err := clients.NewNATSClient(cfg.NATS)
			if err != nil {
				return err
			}
			defer natsClient.Close()

			ctx, cancel := context.WithTimeout(c.Context(), cfg.RelayTimeout())
			defer cancel()
			proof, err := clients.Observe(ctx, natsClient.GetConnection(), cfg.Relay.SubjectPrefix, chain, emitterAddr, sequence)
			if err != nil {
				return err
			}
			fmt.Println(hexutil.Encode(proof))
			return nil
		},
	}
	flags := c.Flags()
	flags.Uint16Var(&chain, "chain", 0, "relay chain id of the emitter (default bridge.externalChainId)")
	flags.StringVar(&emitter, "emitter", "", "emitter address (default bridge.emitterAddress)")
	flags.Uint64Var(&sequence, "sequence", 0, "message sequence")
	return c
}

// attestCommand signs a transfer as if observed on a foreign chain, using relay.guardianKeys
func attestCommand(configPath *string) *cobra.Command {
	var (
		source      uint16
		emitter     string
		sequence    uint64
		kind        string
		sender      string
		amount      string
		targetChain uint16
		recipient   string
		metadata    types.TokenMetadata
	)
	c := &cobra.Command{
		Use:   "attest",
		Short: "Prints a guardian-signed proof of a transfer from a foreign chain",
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			keys, err := clients.ParseGuardianKeys(cfg.Relay.GuardianKeys)
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				return errors.New("relay.guardianKeys is required to sign proofs")
			}
			emitterAddr, err := clients.ParseEmitter(emitter)
			if err != nil {
				return err
			}
			value, ok := new(big.Int).SetString(amount, 10)
			if !ok || value.Sign() < 0 {
				return fmt.Errorf("--amount: invalid unsigned decimal %q", amount)
			}
			to, err := hexutil.Decode(recipient)
			if err != nil {
				return fmt.Errorf("--recipient: %w", err)
			}
			if targetChain == 0 {
				targetChain = cfg.Bridge.ExternalChainID
			}

			var intent *types.TransferIntent
			switch kind {
			case "token":
				intent = types.NewTokenTransfer(common.HexToAddress(sender), value, targetChain, to)
			case "nft":
				intent = types.NewNFTTransfer(common.HexToAddress(sender), value, metadata, targetChain, to)
			default:
				return fmt.Errorf("--kind must be token or nft, got %q", kind)
			}
			payload, err := types.EncodeTransfer(intent)
			if err != nil {
				return err
			}

			proof, err := clients.NewDevnetNetwork(keys).Attest(&clients.Envelope{
				Timestamp:        uint32(time.Now().Unix()),
				Nonce:            uint32(sequence),
				EmitterChain:     source,
				Emitter:          emitterAddr,
				Sequence:         sequence,
				ConsistencyLevel: clients.ConsistencyLevel(cfg.Bridge.ConsistencyLevel),
				Payload:          payload,
			})
			if err != nil {
				return err
			}
			fmt.Println(hexutil.Encode(proof))
			return nil
		},
	}
	flags := c.Flags()
	flags.Uint16Var(&source, "source-chain", 0, "relay chain id the transfer comes from")
	flags.StringVar(&emitter, "emitter", "", "emitter address of the source bridge")
	flags.Uint64Var(&sequence, "sequence", 0, "message sequence")
	flags.StringVar(&kind, "kind", "token", "token | nft")
	flags.StringVar(&sender, "sender", "0x0000000000000000000000000000000000000000", "sender on the source chain")
	flags.StringVar(&amount, "amount", "0", "amount, or token id for nft")
	flags.Uint16Var(&targetChain, "target-chain", 0, "relay chain id of the destination (default bridge.externalChainId)")
	flags.StringVar(&recipient, "recipient", "", "recipient bytes (hex)")
	flags.StringVar(&metadata.Name, "name", "", "nft name")
	flags.StringVar(&metadata.Symbol, "symbol", "", "nft symbol")
	flags.StringVar(&metadata.URI, "uri", "", "nft uri")
	_ = c.MarkFlagRequired("source-chain")
	_ = c.MarkFlagRequired("emitter")
	_ = c.MarkFlagRequired("recipient")
	return c
}
