package router

import (
	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/webserver/controller"
	"github.com/gin-gonic/gin"
)

// New builds the engine serving the registration pages.
func New(registration *controller.Registration) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	// multipart forms above this size spill to temporary files
	engine.MaxMultipartMemory = 8 << 20
	api := engine.Group("/api/registration")
	{
		api.GET("state", registration.GetState)
		api.POST("draft", registration.PostDraft)
		api.POST("code", registration.PostCode)
		api.POST("code/resend", registration.PostResend)
		api.POST("verify", registration.PostVerify)
		api.POST("abandon", registration.PostAbandon)
	}
	return engine
}

func Run(address string, registration *controller.Registration) error {
	return New(registration).Run(address)
}
