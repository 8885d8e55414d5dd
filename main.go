package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/bot"
	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/config"
	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/db"
	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/pkg/log"
	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/service"
	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/webserver/controller"
	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/webserver/router"
	"github.com/gin-gonic/gin"
)

func main() {
	conf := config.GetConfig()
	if conf.LogLevel != "trace" && conf.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	sealer, err := service.NewSealerFromHex(conf.DraftKey)
	if err != nil {
		log.Fatal("draft key: %v", err)
	}
	if conf.DraftKey == "" {
		log.Warn("no draft key given: drafts staged before a restart cannot be read back")
	}
	store := service.NewDraftStore(db.DB(), sealer)
	httpClient := service.NewHTTPClient(conf.HTTPTimeoutDuration())
	otpClient := service.NewOtpClient(conf.OtpURL, httpClient)
	accountClient := service.NewAccountClient(conf.AccountURL, httpClient)

	var observer service.OutcomeObserver
	var b *bot.Bot
	if conf.BotToken != "" {
		b, err = bot.New(conf.BotToken, conf.BotChat, nil)
		if err != nil {
			log.Warn("bot: %v", err)
		} else {
			observer = b
		}
	}

	sessions := service.NewSessionRegistry(func() *service.Controller {
		return service.NewController(store, otpClient, accountClient, service.ControllerOptions{
			Cooldown: conf.ResendCooldownDuration(),
			Ticks:    service.RealTicks,
			Observer: observer,
		})
	})
	bot.RegisterStatus(sessions.Len)

	GoBackgrounds(store, sessions, conf.DraftTTLDuration(), conf.SessionIdleDuration())

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info("shutting down")
		sessions.CloseAll()
		if b != nil {
			b.Stop()
		}
		if err := db.Close(); err != nil {
			log.Warn("close database: %v", err)
		}
		os.Exit(0)
	}()

	log.Info("listening on %v", conf.Address)
	if err := router.Run(conf.Address, &controller.Registration{
		Sessions:     sessions,
		SecureCookie: conf.SecureCookie,
	}); err != nil {
		log.Fatal("%v", err)
	}
}
