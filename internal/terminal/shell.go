package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"pdfchat/internal/app"
	"pdfchat/internal/model"
)

const helpText = `commands:
  /docs          show or hide the document list
  /select ID     switch to another document (clears the conversation)
  /upload PATH   upload a PDF
  /refresh       reload the document list
  /help          show this help
  /quit          exit
anything else is sent as a question about the selected document`

// Shell is a line-oriented chat screen for one viewer.
type Shell struct {
	screens  *app.ScreenService
	viewerID string
	in       io.Reader
	out      io.Writer

	userColor   *color.Color
	aiColor     *color.Color
	noticeColor *color.Color
	mutedColor  *color.Color
}

func New(screens *app.ScreenService, viewerID string, in io.Reader, out io.Writer) *Shell {
	return &Shell{
		screens:     screens,
		viewerID:    viewerID,
		in:          in,
		out:         out,
		userColor:   color.New(color.FgMagenta),
		aiColor:     color.New(color.FgGreen),
		noticeColor: color.New(color.FgYellow, color.Bold),
		mutedColor:  color.New(color.FgHiBlack),
	}
}

// Run mounts a fresh screen and processes input until EOF, /quit or ctx ends.
// The screen is dropped when Run returns.
func (s *Shell) Run(ctx context.Context) error {
	screen, err := s.screens.Mount(ctx, s.viewerID)
	if err != nil {
		return err
	}
	defer func() {
		_ = s.screens.Close(context.WithoutCancel(ctx), s.viewerID)
	}()
	s.printSelection(screen)
	s.mutedColor.Fprintln(s.out, "type /help for commands")

	scanner := bufio.NewScanner(s.in)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		line := scanner.Text()
		quit, err := s.handle(ctx, line)
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
	}
}

func (s *Shell) handle(ctx context.Context, line string) (bool, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		return false, s.ask(ctx, line)
	}

	cmd, arg, _ := strings.Cut(trimmed, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(s.out, helpText)
	case "/docs":
		screen, err := s.screens.ToggleDropdown(ctx, s.viewerID)
		if err != nil {
			return false, err
		}
		s.printDropdown(screen)
	case "/select":
		return false, s.selectDocument(ctx, arg)
	case "/refresh":
		screen, err := s.screens.RefreshDocuments(ctx, s.viewerID)
		if err != nil {
			return false, err
		}
		s.mutedColor.Fprintf(s.out, "%d document(s) available\n", len(screen.Documents))
	case "/upload":
		return false, s.upload(ctx, arg)
	default:
		s.mutedColor.Fprintf(s.out, "unknown command %s, type /help\n", cmd)
	}
	return false, nil
}

func (s *Shell) selectDocument(ctx context.Context, arg string) error {
	id, err := strconv.Atoi(arg)
	if err != nil {
		s.mutedColor.Fprintln(s.out, "usage: /select ID")
		return nil
	}
	screen, err := s.screens.SelectDocument(ctx, s.viewerID, id)
	if errors.Is(err, model.ErrDocumentNotFound) {
		s.mutedColor.Fprintf(s.out, "no document with ID %d, try /docs\n", id)
		return nil
	}
	if err != nil {
		return err
	}
	s.printSelection(screen)
	return nil
}

func (s *Shell) upload(ctx context.Context, path string) error {
	if path == "" {
		s.mutedColor.Fprintln(s.out, "usage: /upload PATH")
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		s.mutedColor.Fprintf(s.out, "cannot open %s: %v\n", path, err)
		return nil
	}
	defer f.Close()

	if _, err := s.screens.Upload(ctx, s.viewerID, filepath.Base(path), f); err != nil {
		return err
	}
	_, notice, err := s.screens.TakeNotice(ctx, s.viewerID)
	if err != nil {
		return err
	}
	if notice != "" {
		s.noticeColor.Fprintf(s.out, "! %s\n", notice)
	}
	return nil
}

func (s *Shell) ask(ctx context.Context, question string) error {
	pending, err := s.screens.SubmitQuestion(ctx, s.viewerID, question)
	if errors.Is(err, app.ErrAnswerPending) {
		s.mutedColor.Fprintln(s.out, "still waiting for the previous answer")
		return nil
	}
	if err != nil {
		return err
	}
	if pending == nil {
		return nil
	}

	s.userColor.Fprintf(s.out, "S  %s\n", question)
	s.mutedColor.Fprintln(s.out, "AI is typing...")
	before, err := s.screens.Screen(ctx, s.viewerID)
	if err != nil {
		return err
	}
	after, err := pending.Await(ctx)
	if err != nil {
		return err
	}
	for _, msg := range newMessages(before.Messages, after.Messages) {
		if msg.Type == model.MessageTypeAI {
			s.aiColor.Fprintf(s.out, "AI %s\n", msg.Content)
		}
	}
	return nil
}

func (s *Shell) printSelection(screen *model.Screen) {
	if screen.Selected == nil {
		s.mutedColor.Fprintln(s.out, "Please select a document to begin.")
		return
	}
	s.mutedColor.Fprintf(s.out, "Selected document: %s (ID: %d). Ask a question about this document.\n",
		screen.Selected.Filename, screen.Selected.ID)
}

func (s *Shell) printDropdown(screen *model.Screen) {
	if !screen.DropdownOpen || len(screen.Documents) == 0 {
		return
	}
	for _, doc := range screen.Documents {
		marker := " "
		if screen.IsSelected(doc.ID) {
			marker = "*"
		}
		fmt.Fprintf(s.out, "%s %-40s ID: %d\n", marker, doc.Filename, doc.ID)
	}
}

// newMessages returns the tail of after that was not present in before.
func newMessages(before, after []model.Message) []model.Message {
	if len(after) <= len(before) {
		return nil
	}
	return after[len(before):]
}
