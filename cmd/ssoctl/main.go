package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vendaseguro/chatsso/internal/auth"
	"github.com/vendaseguro/chatsso/internal/linkhydrate"
	"github.com/vendaseguro/chatsso/internal/ssotoken"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	_ = godotenv.Load()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "encrypt":
		err = runEncrypt(args)
	case "decrypt":
		err = runDecrypt(args)
	case "hydrate":
		err = runHydrate(args)
	case "hashpass":
		err = runHashPass(args)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal().Err(err).Str("cmd", cmd).Msg("falha")
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "ssoctl")
	fmt.Fprintln(os.Stderr, "uso:")
	fmt.Fprintln(os.Stderr, "  ssoctl encrypt --email alice@example.com [--user 42] [--opaque tok123] [--iv iv] [--key chave]")
	fmt.Fprintln(os.Stderr, "  ssoctl decrypt [--key chave] <token>")
	fmt.Fprintln(os.Stderr, "  ssoctl hydrate --token chat=<token> [--in pagina.html] [--out saida.html]")
	fmt.Fprintln(os.Stderr, "  ssoctl hashpass <senha>")
	fmt.Fprintln(os.Stderr, "a chave padrão vem de SSO_DECRYPT_KEY")
}

func keyFlag(fs *flag.FlagSet) *string {
	return fs.String("key", os.Getenv("SSO_DECRYPT_KEY"), "chave compartilhada com o Hub")
}

func runEncrypt(args []string) error {
	fs := flag.NewFlagSet("encrypt", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		email  = fs.String("email", "", "email do usuário")
		user   = fs.String("user", "0", "id do usuário no Hub")
		opaque = fs.String("opaque", "", "id opaco do token (aleatório se vazio)")
		iv     = fs.String("iv", "", "iv (aleatório se vazio)")
		key    = keyFlag(fs)
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*email) == "" || *key == "" {
		return errors.New("--email e --key são obrigatórios")
	}

	if *opaque == "" {
		s, err := auth.RandomSecret(12)
		if err != nil {
			return err
		}
		*opaque = s
	}
	if *iv == "" {
		s, err := auth.RandomSecret(12)
		if err != nil {
			return err
		}
		*iv = s
	}

	token, err := ssotoken.Encrypt(ssotoken.Payload{OpaqueID: *opaque, UserID: *user, Email: *email}, *key, *iv)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func runDecrypt(args []string) error {
	fs := flag.NewFlagSet("decrypt", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	key := keyFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 || *key == "" {
		return errors.New("informe o token e a chave")
	}

	p, err := ssotoken.Decrypt(fs.Arg(0), *key)
	if err != nil {
		return err
	}
	fmt.Printf("opaque_id=%s\nuser_id=%s\nemail=%s\n", p.OpaqueID, p.UserID, p.Email)
	return nil
}

type tokenList map[string]string

func (t tokenList) String() string { return fmt.Sprint(map[string]string(t)) }

func (t tokenList) Set(v string) error {
	k, val, ok := strings.Cut(v, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("token %q deve ser chave=valor", v)
	}
	t[strings.TrimSpace(k)] = val
	return nil
}

func runHydrate(args []string) error {
	fs := flag.NewFlagSet("hydrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	tokens := tokenList{}
	fs.Var(tokens, "token", "chave=token (repetível)")
	in := fs.String("in", "", "arquivo HTML de entrada (stdin se vazio)")
	out := fs.String("out", "", "arquivo de saída (stdout se vazio)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var r io.Reader = os.Stdin
	if *in != "" {
		f, err := os.Open(*in)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	var w io.Writer = os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	n, err := linkhydrate.HydrateHTML(r, w, linkhydrate.Tokens(tokens), time.Now(), linkhydrate.WithErrorHook(func(href string, err error) {
		log.Warn().Err(err).Msg("link ignorado")
	}))
	if err != nil {
		return err
	}
	log.Info().Int("links", n).Msg("hidratação concluída")
	return nil
}

func runHashPass(args []string) error {
	if len(args) != 1 {
		return errors.New("uso: ssoctl hashpass <senha>")
	}
	hash, err := auth.Hash(args[0])
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}
