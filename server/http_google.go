package server

import (
	"net/http"

	"github.com/sjqzhang/googleAuthenticator"
	log "github.com/sjqzhang/seelog"
)

func (c *Server) VerifyGoogleCode(secret string, code string, discrepancy int64) bool {
	var (
		goauth *googleAuthenticator.GAuth
	)
	goauth = googleAuthenticator.NewGAuth()
	ok, err := goauth.VerifyCode(secret, code, discrepancy)
	if err != nil {
		log.Error(err)
	}
	return ok
}

func (c *Server) GenGoogleCode(w http.ResponseWriter, r *http.Request) {
	var (
		err    error
		result JsonResult
		secret string
		goauth *googleAuthenticator.GAuth
	)
	r.ParseForm()
	goauth = googleAuthenticator.NewGAuth()
	secret = r.FormValue("secret")
	if secret == "" {
		secret = Config().UploadSecret
	}
	result.Status = "ok"
	result.Message = "ok"
	if !c.IsPeer(r) {
		result.Status = "fail"
		result.Message = c.GetClusterNotPermitMessage(r)
		w.Write([]byte(c.util.JsonEncodePretty(result)))
		return
	}
	if result.Data, err = goauth.GetCode(secret); err != nil {
		result.Status = "fail"
		result.Message = err.Error()
		w.Write([]byte(c.util.JsonEncodePretty(result)))
		return
	}
	w.Write([]byte(c.util.JsonEncodePretty(result)))
}

func (c *Server) GenGoogleSecret(w http.ResponseWriter, r *http.Request) {
	var (
		err    error
		result JsonResult
	)
	result.Status = "ok"
	result.Message = "ok"
	if !c.IsPeer(r) {
		result.Status = "fail"
		result.Message = c.GetClusterNotPermitMessage(r)
		w.Write([]byte(c.util.JsonEncodePretty(result)))
		return
	}
	if result.Data, err = googleAuthenticator.NewGAuth().CreateSecret(); err != nil {
		result.Status = "fail"
		result.Message = err.Error()
	}
	w.Write([]byte(c.util.JsonEncodePretty(result)))
}
