package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aegis-bot/warden/automod/keyword"

	cli "github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:  "kw-cli",
		Usage: "informal debugging CLI tool for profanity keyword matching",
	}
	app.Commands = []*cli.Command{
		{
			Name:   "tokens",
			Usage:  "reads lines of text from stdin, tokenizes, and prints tokens matching the word list",
			Action: runTokens,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "words-file",
					Usage: "path to a file of extra words, one per line (like a group's custom word list)",
				},
				&cli.BoolFlag{
					Name:  "identifiers",
					Usage: "whether to parse the line as identifiers (instead of text)",
				},
				&cli.BoolFlag{
					Name:  "censored",
					Usage: "keep censor characters (*, #) inside tokens",
				},
			},
		},
		{
			Name:   "normalize",
			Usage:  "reads lines of text from stdin, prints each token with its folded, slugged and de-leeted forms",
			Action: runNormalize,
		},
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(h))
	if err := app.Run(os.Args); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(-1)
	}
}

func loadWords(path string) (map[string]bool, error) {
	if path == "" {
		return map[string]bool{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var words []string
	for _, line := range strings.Split(string(raw), "\n") {
		if w := keyword.LettersOnly(strings.TrimSpace(line)); w != "" {
			words = append(words, w)
		}
	}
	return keyword.WordSet(words), nil
}

func runTokens(cctx *cli.Context) error {
	extra, err := loadWords(cctx.String("words-file"))
	if err != nil {
		return err
	}
	identMode := cctx.Bool("identifiers")
	censored := cctx.Bool("censored")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		mode := keyword.ModeText
		switch {
		case identMode:
			mode = keyword.ModeIdentifier
		case censored:
			mode = keyword.ModeCensored
		}
		for _, tok := range keyword.Tokenize(line, mode) {
			clean, leet := keyword.MatchForms(tok)
			for _, form := range []string{clean, leet} {
				if keyword.IsBaseProfanity(form) || keyword.TokenInSets(form, extra) {
					fmt.Printf("MATCH\t%s\t%s\n", tok, line)
					break
				}
			}
		}
	}
	return scanner.Err()
}

func runNormalize(cctx *cli.Context) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		fmt.Printf("LINE\t%s\t%s\n", keyword.FoldText(line), keyword.Slugify(line))
		for _, tok := range keyword.TokenizeWords(line) {
			fmt.Printf("TOKEN\t%s\t%s\t%s\n", tok, keyword.LettersOnly(tok), keyword.CanonicalizeLeet(tok))
		}
	}
	return scanner.Err()
}
