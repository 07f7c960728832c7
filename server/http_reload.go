package server

import (
	"net/http"

	log "github.com/sjqzhang/seelog"
)

func confPath() string {
	if FileName != "" {
		return FileName
	}
	return CONST_CONF_FILE_NAME
}

// Reload serves /reload?action=get|set|reload. Storage settings only take
// effect after a restart.
func (c *Server) Reload(w http.ResponseWriter, r *http.Request) {
	var (
		err     error
		cfg     *GlobalConfig
		action  string
		cfgjson string
		result  JsonResult
	)
	result.Status = "fail"
	r.ParseForm()
	if !c.IsPeer(r) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(c.GetClusterNotPermitMessage(r)))
		return
	}
	cfgjson = r.FormValue("cfg")
	action = r.FormValue("action")
	switch action {
	case "get":
		result.Data = Config()
		result.Status = "ok"
	case "set":
		if cfgjson == "" {
			result.Message = "(error)parameter cfg(json) require"
			break
		}
		if cfg, err = loadConfig([]byte(cfgjson)); err != nil {
			log.Error(err)
			result.Message = err.Error()
			break
		}
		if !c.util.WriteFile(confPath(), c.util.JsonEncodePretty(cfg)) {
			result.Message = "(error)write " + confPath() + " fail"
			break
		}
		result.Status = "ok"
	case "reload":
		if err = ReloadConfig(confPath()); err != nil {
			result.Message = err.Error()
			break
		}
		result.Status = "ok"
	default:
		w.Write([]byte("(error)action support set(json) get reload"))
		return
	}
	w.Write([]byte(c.util.JsonEncodePretty(result)))
}
