package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/OnePlanDan/screamscriber/audio"
	"github.com/OnePlanDan/screamscriber/config"
	"github.com/OnePlanDan/screamscriber/dispatch"
	"github.com/OnePlanDan/screamscriber/hook"
	"github.com/OnePlanDan/screamscriber/session"
)

var (
	styleTitle  = lipgloss.NewStyle().Bold(true)
	styleRec    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	styleFlush  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	styleText   = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	styleMeta   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	styleNotice = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	styleErr    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func printBanner(cfg *config.Config, deviceName string, combo hook.Combo) {
	fmt.Println(styleTitle.Render("screamscriber " + version))
	verb := "hold"
	if cfg.Mode == "continuous" {
		verb = "toggle with"
	}
	fmt.Println(styleMeta.Render(fmt.Sprintf("%s %s to dictate | %s backend | mic: %s",
		verb, combo.String(), cfg.Backend, deviceName)))
	if audio.IsBluetooth(deviceName) {
		fmt.Println(styleNotice.Render("bluetooth mic detected: expect lower audio quality"))
	}
}

func printState(st session.State) {
	switch st {
	case session.StateRecording:
		fmt.Println(styleRec.Render("● recording"))
	case session.StateFlushing:
		fmt.Println(styleFlush.Render("… transcribing"))
	}
}

func printResult(res dispatch.Result) {
	if res.Failed() {
		fmt.Println(styleErr.Render(fmt.Sprintf("✗ %v", res.Err)))
		return
	}
	meta := fmt.Sprintf("[%s %dms]", res.Origin, res.Latency.Milliseconds())
	fmt.Println(styleText.Render(res.Text) + " " + styleMeta.Render(meta))
}

func printNotice(msg string) {
	fmt.Println(styleNotice.Render(msg))
}

func printError(err error) {
	fmt.Println(styleErr.Render("✗ " + err.Error()))
}
