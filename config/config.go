package config

import (
	log2 "log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/common"
	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/db"
	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/pkg/log"
	"github.com/stevenroose/gonfig"
)

type Params struct {
	Address         string `id:"address" short:"a" default:"0.0.0.0:14915" desc:"Listening address"`
	Config          string `id:"config" short:"c" default:"$HOME/.config/wayfare" desc:"Wayfare configuration directory"`
	OtpURL          string `id:"otp-url" default:"http://127.0.0.1:8081" desc:"Base URL of the verification code service"`
	AccountURL      string `id:"account-url" default:"http://127.0.0.1:8082" desc:"Base URL of the account service"`
	HTTPTimeout     int    `id:"http-timeout" default:"15" desc:"Timeout in seconds of calls to external services"`
	ResendCooldown  int    `id:"resend-cooldown" default:"60" desc:"Seconds before a new code may be requested"`
	DraftTTL        int    `id:"draft-ttl" default:"60" desc:"Minutes a staged registration draft is kept"`
	SessionIdle     int    `id:"session-idle" default:"30" desc:"Minutes before an idle registration session is evicted"`
	DraftKey        string `id:"draft-key" desc:"Hex encoded 32-byte key sealing staged passwords; random per process if empty"`
	SecureCookie    bool   `id:"secure-cookie" desc:"Mark the session cookie as secure"`
	BotToken        string `id:"bot-token" desc:"Telegram bot token for outcome notifications"`
	BotChat         int64  `id:"bot-chat" desc:"Telegram chat receiving outcome notifications"`
	LogLevel        string `id:"log-level" default:"info" desc:"Optional values: trace, debug, info, warn or error"`
	LogFile         string `id:"log-file" desc:"The path of log file"`
	LogMaxDays      int64  `id:"log-max-days" default:"3" desc:"Maximum number of days to keep log files"`
	LogDisableColor bool   `id:"log-disable-color"`
}

func (p *Params) HTTPTimeoutDuration() time.Duration {
	return time.Duration(p.HTTPTimeout) * time.Second
}

func (p *Params) ResendCooldownDuration() time.Duration {
	return time.Duration(p.ResendCooldown) * time.Second
}

func (p *Params) DraftTTLDuration() time.Duration {
	return time.Duration(p.DraftTTL) * time.Minute
}

func (p *Params) SessionIdleDuration() time.Duration {
	return time.Duration(p.SessionIdle) * time.Minute
}

var params Params

func initFunc() {
	err := gonfig.Load(&params, gonfig.Conf{
		FileDisable:       true,
		FlagIgnoreUnknown: false,
		EnvPrefix:         "WAYFARE_",
	})
	if err != nil {
		if !strings.HasPrefix(err.Error(), "unexpected word while parsing flags: '-test.") {
			log2.Fatal(err)
		}
	}
	// replace all dots of the filename with underlines
	params.Config = filepath.Join(
		filepath.Dir(params.Config),
		strings.ReplaceAll(filepath.Base(params.Config), ".", "_"),
	)
	// expand '~' with user home
	params.Config, err = common.HomeExpand(params.Config)
	if err != nil {
		log2.Fatal(err)
	}
	params.LogFile, err = common.HomeExpand(params.LogFile)
	if err != nil {
		log2.Fatal(err)
	}
	if strings.Contains(params.Config, "$HOME") {
		if h, err := os.UserHomeDir(); err == nil {
			params.Config = strings.ReplaceAll(params.Config, "$HOME", h)
		}
	}
	if err := os.MkdirAll(params.Config, 0700); err != nil {
		log2.Fatal(err)
	}
	logWay := "console"
	if params.LogFile != "" {
		logWay = "file"
	}
	log.InitLog(logWay, params.LogFile, params.LogLevel, params.LogMaxDays, params.LogDisableColor)
	db.InitDB(params.Config)
}

var once sync.Once

func GetConfig() *Params {
	once.Do(initFunc)
	return &params
}
