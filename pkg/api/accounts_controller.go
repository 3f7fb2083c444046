package api

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KadevalArpit/prelax-email-api/pkg/account"
	"github.com/KadevalArpit/prelax-email-api/pkg/apiresponses"
)

type AccountsController struct {
	registry   *account.Registry
	tracker    *account.Tracker
	log        *zap.SugaredLogger
	middleware []gin.HandlerFunc
}

func NewAccountsController(registry *account.Registry, tracker *account.Tracker, log *zap.SugaredLogger) *AccountsController {
	return &AccountsController{
		registry: registry,
		tracker:  tracker,
		log:      log.Named("api.accounts"),
	}
}

func (AccountsController) BasePath() string {
	return "accounts/"
}

func (ac *AccountsController) Register(rg *gin.RouterGroup) error {
	rg.GET("", ac.handleListAccounts)
	rg.GET("/:id", ac.handleGetAccount)

	return nil
}

func (ac *AccountsController) Handlers() []gin.HandlerFunc {
	return ac.middleware
}

// accountView is the externally visible shape of an account: identity and
// usage only, never SMTP credentials.
type accountView struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Address     string `json:"address"`
	ProviderID  string `json:"providerId,omitempty"`
	DailyLimit  *int   `json:"dailyLimit,omitempty"`
	SentToday   int    `json:"sentToday"`
	RateLimited bool   `json:"rateLimited"`
}

func (ac *AccountsController) view(a account.Account, rec account.UsageRecord) accountView {
	return accountView{
		ID:          a.ID,
		DisplayName: a.DisplayName,
		Address:     a.Address,
		ProviderID:  a.ProviderID,
		DailyLimit:  a.DailyLimit,
		SentToday:   rec.SentToday,
		RateLimited: rec.RateLimited,
	}
}

func (ac *AccountsController) handleListAccounts(c *gin.Context) {
	ac.tracker.RolloverIfNeeded()
	usage := ac.tracker.Snapshot()

	views := make([]accountView, 0, ac.registry.Len())
	for _, a := range ac.registry.List() {
		views = append(views, ac.view(a, usage[a.ID]))
	}

	apiresponses.RespondOK(c, views)
}

func (ac *AccountsController) handleGetAccount(c *gin.Context) {
	id := c.Param("id")

	a, err := ac.registry.Find(id)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			apiresponses.RespondNotFound(c, "account", id)
			return
		}
		apiresponses.RespondInternalError(c, "look up account", err, ac.log)
		return
	}

	ac.tracker.RolloverIfNeeded()
	rec, _ := ac.tracker.Usage(id)

	apiresponses.RespondOK(c, ac.view(a, rec))
}
