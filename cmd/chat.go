package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"ai-interviewer/internal/types"
)

var (
	chatName        string
	chatProfileFile string
	chatScore       bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Run an interview in the terminal",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logCloser, err := loadConfig()
		if err != nil {
			return err
		}
		defer closeQuietly(logCloser)

		svc, err := bootstrap(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		return runChat(cmd.Context(), svc, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVarP(&chatName, "name", "n", "", "candidate name")
	chatCmd.Flags().StringVarP(&chatProfileFile, "profile-file", "f", "", "resume file (.pdf or .txt)")
	chatCmd.Flags().BoolVar(&chatScore, "score", true, "score every answer")
	_ = chatCmd.MarkFlagRequired("profile-file")
}

func runChat(ctx context.Context, svc *services, out io.Writer) error {
	data, err := os.ReadFile(chatProfileFile)
	if err != nil {
		return fmt.Errorf("读取简历失败: %w", err)
	}
	profile, err := svc.extractor.ExtractText(ctx, filepath.Base(chatProfileFile), data)
	if err != nil {
		return err
	}

	sess, analysis, err := svc.analyzer.Start(ctx, chatName, profile)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nSession %s\nResume score: %d/100\n%s\n\n", sess.ID, analysis.Score, analysis.Intro)

	var (
		answer   string
		question string
		total    = float64(analysis.Score)
	)
	for {
		res, err := svc.controller.Advance(ctx, sess.ID, answer)
		if err != nil {
			return err
		}
		if res.Completed {
			if res.ClosingMessage != nil {
				fmt.Fprintf(out, "\nInterviewer: %s\n", *res.ClosingMessage)
			}
			break
		}
		question = *res.Question
		fmt.Fprintf(out, "\nInterviewer: %s\n", question)

		prompt := promptui.Prompt{
			Label: "Your answer",
			Validate: func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("answer must not be empty")
				}
				return nil
			},
		}
		answer, err = prompt.Run()
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				fmt.Fprintln(out, "\nInterview aborted.")
				return nil
			}
			return err
		}

		if chatScore {
			ev, err := svc.evaluator.ScoreSimple(ctx, sess.ID, question, answer, total)
			if err != nil {
				return err
			}
			total = ev.NewTotal
			fmt.Fprintf(out, "  score %.0f/20: %s\n", ev.SubScore, ev.Feedback)
		}
	}

	summary, err := svc.analyzer.Summarize(ctx, sess.ID)
	if err != nil {
		return err
	}
	printSummary(out, summary)
	return nil
}

func printSummary(out io.Writer, s *types.InterviewSummary) {
	fmt.Fprintf(out, "\nSummary\n%s\n", s.Summary)
	if len(s.Strengths) > 0 {
		fmt.Fprintln(out, "\nStrengths:")
		for _, item := range s.Strengths {
			fmt.Fprintf(out, "  + %s\n", item)
		}
	}
	if len(s.Weaknesses) > 0 {
		fmt.Fprintln(out, "\nWeaknesses:")
		for _, item := range s.Weaknesses {
			fmt.Fprintf(out, "  - %s\n", item)
		}
	}
}
