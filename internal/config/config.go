package config

import (
	"crypto/rsa"
	"encoding/base64"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	ld "github.com/launchdarkly/go-server-sdk/v7"

	"github.com/gigmesh/marketplace/internal/utils"
)

const (
	AppName             = "marketplace"
	OrganizationName    = "GigMesh"
	LDConnectionTimeout = 5 * time.Second
)

type Config struct {
	OrganizationName string
	AppName          string
	AppPort          string
	AppUrl           string

	// Database
	DBUrl string

	// Internal services
	TreasuryURL        string
	InternalServiceKey string

	// Twilio / SendGrid for lifecycle notifications
	TwilioAccountSID string
	TwilioAuthToken  string
	SendGridAPIKey   string

	// Auth
	RSAPublicKey *rsa.PublicKey

	// LaunchDarkly flags
	LDFlag_TwilioFromPhone     string
	LDFlag_SendgridFromEmail   string
	LDFlag_SendgridSandboxMode bool
	LDFlag_CORSHighSecurity    bool

	ldClient *ld.LDClient
}

// Close releases the LaunchDarkly client. Deferred from main.
func (c *Config) Close() {
	if c.ldClient != nil {
		c.ldClient.Close()
	}
}

func LoadConfig() *Config {
	utils.Logger.Info("Loading config for app: ", AppName)

	appPort := mustEnv("APP_PORT")
	appUrl := mustEnv("APP_URL")
	dbURL := mustEnv("DB_URL")
	treasuryURL := mustEnv("TREASURY_URL")
	internalKey := mustEnv("INTERNAL_SERVICE_KEY")
	twilioSID := mustEnv("TWILIO_ACCOUNT_SID")
	twilioToken := mustEnv("TWILIO_AUTH_TOKEN")
	sgAPIKey := mustEnv("SENDGRID_API_KEY")
	ldSDKKey := mustEnv("LD_SDK_KEY")

	pubB64 := mustEnv("RSA_PUBLIC_KEY_BASE64")
	pubPEM, err := base64.StdEncoding.DecodeString(pubB64)
	if err != nil {
		utils.Logger.WithError(err).Fatal("RSA_PUBLIC_KEY_BASE64 is not valid base64")
	}
	pubKey, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
	if err != nil {
		utils.Logger.WithError(err).Fatal("Failed to parse RSA public key")
	}

	ldClient, err := ld.MakeClient(ldSDKKey, LDConnectionTimeout)
	if err != nil {
		utils.Logger.WithError(err).Fatal("Failed to create LaunchDarkly client")
	}
	if !ldClient.Initialized() {
		ldClient.Close()
		utils.Logger.Fatal("LaunchDarkly client failed to initialize")
	}

	ctx := ldcontext.New(AppName)

	twilioFromFlag, err := ldClient.StringVariation("twilio_from_phone", ctx, "")
	if err != nil {
		utils.Logger.WithError(err).Fatal("Error retrieving twilio_from_phone flag")
	}
	utils.Logger.Debugf("twilio_from_phone flag: %s", twilioFromFlag)
	if twilioFromFlag == "" {
		utils.Logger.Warn("twilio_from_phone flag is empty, defaulting to +10005550006")
		twilioFromFlag = "+10005550006"
	}

	sgFromFlag, err := ldClient.StringVariation("sendgrid_from_email", ctx, "")
	if err != nil {
		utils.Logger.WithError(err).Fatal("Error retrieving sendgrid_from_email flag")
	}
	utils.Logger.Debugf("sendgrid_from_email flag: %s", sgFromFlag)
	if sgFromFlag == "" {
		utils.Logger.Warn("sendgrid_from_email flag is empty, defaulting to no-reply@gigmesh.io")
		sgFromFlag = "no-reply@gigmesh.io"
	}

	sgSandboxFlag, err := ldClient.BoolVariation("sendgrid_sandbox_mode", ctx, false)
	if err != nil {
		utils.Logger.WithError(err).Fatal("Error retrieving sendgrid_sandbox_mode flag")
	}
	utils.Logger.Debugf("sendgrid_sandbox_mode flag: %t", sgSandboxFlag)

	corsHighSecurityFlag, err := ldClient.BoolVariation("cors_high_security", ctx, false)
	if err != nil {
		utils.Logger.WithError(err).Fatal("Error retrieving cors_high_security flag")
	}
	utils.Logger.Debugf("cors_high_security flag: %t", corsHighSecurityFlag)

	return &Config{
		OrganizationName:           OrganizationName,
		AppName:                    AppName,
		AppPort:                    appPort,
		AppUrl:                     appUrl,
		DBUrl:                      dbURL,
		TreasuryURL:                treasuryURL,
		InternalServiceKey:         internalKey,
		TwilioAccountSID:           twilioSID,
		TwilioAuthToken:            twilioToken,
		SendGridAPIKey:             sgAPIKey,
		RSAPublicKey:               pubKey,
		LDFlag_TwilioFromPhone:     twilioFromFlag,
		LDFlag_SendgridFromEmail:   sgFromFlag,
		LDFlag_SendgridSandboxMode: sgSandboxFlag,
		LDFlag_CORSHighSecurity:    corsHighSecurityFlag,
		ldClient:                   ldClient,
	}
}

func mustEnv(name string) string {
	val := os.Getenv(name)
	if val == "" {
		utils.Logger.Fatalf("%s env var is missing", name)
	}
	return val
}
