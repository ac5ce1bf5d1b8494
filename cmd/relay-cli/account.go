package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"bridge-relay/pkg/config"
	"bridge-relay/pkg/signer"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// newAccountCmd 本地解析签名配置并打印 L1 地址，不访问 relay-server
func newAccountCmd() *cobra.Command {
	var cfg config.SignerConfig
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Print the L1 address derived from a signer configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.KeystorePath != "" && cfg.Password == "" {
				pw, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				cfg.Password = pw
			}

			s, err := signer.Load(cfg)
			if err != nil {
				return err
			}
			printf(cmd, "%s\n", s.Address().Hex())
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.KeystorePath, "keystore", "", "V3 keystore file")
	cmd.Flags().StringVar(&cfg.Password, "password", "", "keystore password (prompted when empty)")
	cmd.Flags().StringVar(&cfg.PrivateKey, "private-key", "", "hex private key")
	cmd.Flags().StringVar(&cfg.Mnemonic, "mnemonic", "", "BIP-39 mnemonic")
	cmd.Flags().StringVar(&cfg.DerivationPath, "path", "m/44'/60'/0'/0/0", "BIP-44 derivation path")
	return cmd
}

// readPassword 终端下不回显；非终端 (管道) 读一行
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Keystore password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
