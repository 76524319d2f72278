package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"records-rag/internal/helper"
	"records-rag/internal/models"
	"records-rag/internal/search"
	"records-rag/internal/store"
)

var (
	flagExact       bool
	flagAssets      bool
	flagJoin        bool
	flagNResults    int
	flagMaxDistance float32
	flagTitles      string
	flagLastDay     bool
	flagLastMonth   bool
	flagLastYear    bool
	flagPlain       bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the indexed files or assets",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		req := search.Request{
			Query:       strings.Join(args, " "),
			NResults:    flagNResults,
			MaxDistance: flagMaxDistance,
		}
		if !flagAssets {
			req.Where = store.BuildFilter(map[string][]string{models.FieldTitle: store.SplitValues(flagTitles)})
			req.Time = search.TimeWindow(flagLastDay, flagLastMonth, flagLastYear, time.Now())
		}

		var results []models.Result
		switch {
		case flagExact && flagAssets:
			results, err = a.search.AssetsExact(ctx, req)
		case flagExact:
			results, err = a.search.FilesExact(ctx, req)
		case flagAssets:
			results, err = a.search.AssetsSemantic(ctx, req)
		default:
			results, err = a.search.FilesSemantic(ctx, req)
		}
		if err != nil {
			return err
		}

		if flagJoin && !flagAssets {
			joined, err := a.joiner.JoinAssets(ctx, results)
			if err != nil {
				return err
			}
			helper.PrettyPrint(os.Stdout, joined)
			return nil
		}
		helper.PrettyPrint(os.Stdout, results)
		return nil
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the indexed files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		bot, err := a.chatbot()
		if err != nil {
			return err
		}
		query := strings.Join(args, " ")
		response, err := bot.Query(ctx, query)
		if err != nil {
			return err
		}

		log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Printf("%s\n\n", query)

		log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Printf("%s\n\n", response.Source)

		log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Printf("%s\n\n", render(response.Content))
		return nil
	},
}

// render formats a markdown answer for the terminal, falling back to the
// raw text.
func render(answer string) string {
	if flagPlain {
		return answer
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return answer
	}
	out, err := r.Render(answer)
	if err != nil {
		log.Debug().Err(err).Msg("render answer")
		return answer
	}
	return out
}

func init() {
	f := searchCmd.Flags()
	f.BoolVar(&flagExact, "exact", false, "substring search instead of semantic")
	f.BoolVar(&flagAssets, "assets", false, "search knowledge articles instead of files")
	f.BoolVar(&flagJoin, "join", false, "group file results under their parent articles")
	f.IntVarP(&flagNResults, "n-results", "n", 0, "number of distinct records (default from config)")
	f.Float32Var(&flagMaxDistance, "max-distance", 0, "semantic distance bound (default from config)")
	f.StringVar(&flagTitles, "title", "", "comma separated file titles to restrict to")
	f.BoolVar(&flagLastDay, "last-day", false, "only files created in the last day")
	f.BoolVar(&flagLastMonth, "last-month", false, "only files created in the last month")
	f.BoolVar(&flagLastYear, "last-year", false, "only files created in the last year")
	askCmd.Flags().BoolVar(&flagPlain, "plain", false, "print the answer without markdown rendering")
	rootCmd.AddCommand(searchCmd, askCmd)
}
