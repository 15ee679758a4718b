package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/bytedance/sonic"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/zhouzirui/z-invoice/backend/internal/app"
	"github.com/zhouzirui/z-invoice/backend/internal/config"
	"github.com/zhouzirui/z-invoice/backend/internal/service/engine"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981"))

	stepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	snapshotStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#F59E0B")).
			Padding(0, 1)
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	source := flag.String("source", "", "渠道来源 (web/whatsapp/telegram)，留空则交互选择")
	contact := flag.String("contact", "", "外部联系方式")
	timeout := flag.Duration("timeout", 45*time.Second, "单轮超时时间")
	quiet := flag.Bool("quiet", true, "隐藏服务日志")
	flag.Parse()

	if *quiet {
		log.SetOutput(io.Discard)
	}

	ctx := context.Background()
	services, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("服务初始化失败: %v", err)
	}
	defer services.Close()

	if *source == "" {
		*source, err = chooseSource(services)
		if err != nil {
			fmt.Println(errorStyle.Render(err.Error()))
			os.Exit(1)
		}
	}

	started, err := services.Engine.StartSession(ctx, *source, *contact)
	if err != nil {
		fmt.Println(errorStyle.Render(err.Error()))
		os.Exit(1)
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("z-invoice · %s · %s", *source, started.SessionID)))
	fmt.Println(stepStyle.Render("/session afișează starea, /quit iese"))
	printReply(started.GreetingText, string(started.Step))

	for {
		var text string
		err := survey.AskOne(&survey.Input{Message: "tu:"}, &text)
		if errors.Is(err, terminal.InterruptErr) {
			return
		}
		if err != nil {
			fmt.Println(errorStyle.Render(err.Error()))
			return
		}

		switch strings.TrimSpace(text) {
		case "":
			continue
		case "/quit":
			return
		case "/session":
			printSession(ctx, services.Engine, started.SessionID)
			continue
		}

		turnCtx, cancel := context.WithTimeout(ctx, *timeout)
		result, err := services.Engine.SubmitTurn(turnCtx, engine.TurnRequest{
			SessionID: started.SessionID,
			Text:      text,
			Source:    *source,
		})
		cancel()
		if err != nil {
			fmt.Println(errorStyle.Render(err.Error()))
			continue
		}

		printReply(result.ReplyText, fmt.Sprintf("%s · %s", result.Step, result.Source))
		if result.DocumentRef != nil {
			fmt.Println(titleStyle.Render("document " + result.DocumentRef.Number))
		}
	}
}

func chooseSource(services *app.App) (string, error) {
	profiles := services.Channels.List()
	options := make([]string, 0, len(profiles))
	for _, p := range profiles {
		options = append(options, p.Source)
	}

	var source string
	err := survey.AskOne(&survey.Select{
		Message: "Alege canalul:",
		Options: options,
	}, &source)
	return source, err
}

func printReply(text, step string) {
	fmt.Println(assistantStyle.Render("asistent: " + text))
	fmt.Println(stepStyle.Render("[" + step + "]"))
}

func printSession(ctx context.Context, eng *engine.Engine, sessionID string) {
	view, err := eng.Session(ctx, sessionID)
	if err != nil {
		fmt.Println(errorStyle.Render(err.Error()))
		return
	}
	data, err := sonic.ConfigStd.MarshalIndent(view.Session, "", "  ")
	if err != nil {
		fmt.Println(errorStyle.Render(err.Error()))
		return
	}
	fmt.Println(snapshotStyle.Render(string(data)))
}
