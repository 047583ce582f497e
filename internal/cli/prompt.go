package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/ape/internal/llm"
)

var errNoProviders = errors.New("no LLM provider is configured; set GROQ_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY, OLLAMA_HOST or APE_PROVIDERS_FILE")

var (
	promptSystem string
	promptStream bool
	promptTemp   float32
	promptTokens int
)

var promptCmd = &cobra.Command{
	Use:   "prompt [text]",
	Short: "Send one prompt to the provider chain",
	Long: `Send a single user message to the first healthy provider. The text is
read from stdin when no argument is given.

Examples:
  ape prompt "Summarize the attached notes"
  cat notes.txt | ape prompt --stream --system "You are terse."`,
	Args: cobra.ArbitraryArgs,
	RunE: runPrompt,
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the configured providers in failover order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := build(cmd.Context(), true)
		if err != nil {
			if errors.Is(err, llm.ErrNoProviderConfigured) {
				return errNoProviders
			}
			return err
		}
		defer a.Close()
		for i, name := range a.Registry.Providers() {
			fmt.Printf("%d. %s\n", i+1, name)
		}
		return nil
	},
}

func init() {
	promptCmd.Flags().StringVarP(&promptSystem, "system", "s", "", "system message")
	promptCmd.Flags().BoolVar(&promptStream, "stream", false, "print chunks as they arrive")
	promptCmd.Flags().Float32Var(&promptTemp, "temperature", -1, "sampling temperature (provider default when negative)")
	promptCmd.Flags().IntVar(&promptTokens, "max-tokens", 0, "completion token limit (provider default when 0)")
}

func runPrompt(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	if text == "" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = string(b)
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("prompt text is empty")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := build(ctx, true)
	if err != nil {
		if errors.Is(err, llm.ErrNoProviderConfigured) {
			return errNoProviders
		}
		return err
	}
	defer a.Close()

	var msgs []llm.Message
	if promptSystem != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: promptSystem})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: text})

	var opts []llm.CallOption
	if promptTemp >= 0 {
		opts = append(opts, llm.WithTemperature(promptTemp))
	}
	opts = append(opts, llm.WithMaxTokens(promptTokens))

	if promptStream {
		ch, err := a.Registry.Stream(ctx, msgs, opts...)
		if err != nil {
			return err
		}
		for c := range ch {
			if c.Err != nil {
				fmt.Println()
				return c.Err
			}
			fmt.Print(c.Text)
		}
		fmt.Println()
		return nil
	}

	res, err := a.Registry.Generate(ctx, msgs, opts...)
	if err != nil {
		return err
	}
	fmt.Println(res.Content)
	if verbose {
		fmt.Fprintf(os.Stderr, "[%s/%s] %d in, %d out\n", res.Provider, res.Model, res.InputTokens, res.OutputTokens)
	}
	return nil
}
