package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/astaxie/beego/httplib"
	log "github.com/sjqzhang/seelog"
	"github.com/sjqzhang/tusd"
)

// hookDataStore checks the creation request before the upload exists.
type hookDataStore struct {
	tusd.DataStore
	server *Server
}

func (store hookDataStore) NewUpload(info tusd.FileInfo) (id string, err error) {
	if Config().AuthUrl != "" {
		if err = store.server.checkAuthToken(info.MetaData); err != nil {
			return "", err
		}
	}
	if Config().EnableGoogleAuth {
		code, ok := info.MetaData["code"]
		if !ok || !store.server.VerifyGoogleCode(Config().UploadSecret, code, 1) {
			log.Warn(fmt.Sprintf("google code check fail, current header:%v", info.MetaData))
			return "", httpError{error: errors.New("invalid code"), statusCode: 401}
		}
	}
	return store.DataStore.NewUpload(info)
}

func (c *Server) checkAuthToken(metadata map[string]string) error {
	var (
		jsonResult JsonResult
	)
	auth_token, ok := metadata["auth_token"]
	if !ok {
		msg := "token auth fail,auth_token is not in http header Upload-Metadata"
		log.Error(msg, fmt.Sprintf("current header:%v", metadata))
		return httpError{error: errors.New(msg), statusCode: 401}
	}
	req := httplib.Post(Config().AuthUrl)
	req.Param("auth_token", auth_token)
	req.SetTimeout(time.Second*5, time.Second*10)
	content, err := req.String()
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "{") && strings.HasSuffix(content, "}") {
		if err = json.Unmarshal([]byte(content), &jsonResult); err != nil {
			log.Error(err)
			return httpError{error: errors.New(err.Error() + content), statusCode: 401}
		}
		if jsonResult.Data != "ok" {
			return httpError{error: errors.New(content), statusCode: 401}
		}
		return nil
	}
	if err != nil {
		log.Error(err)
		return err
	}
	if content != "ok" {
		return httpError{error: errors.New(content), statusCode: 401}
	}
	return nil
}
