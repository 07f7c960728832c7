package server

import (
	"net/http"
	"path/filepath"
	"runtime"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	log "github.com/sjqzhang/seelog"

	"github.com/sjqzhang/go-resumable/internal/model"
)

func (c *Server) Status(w http.ResponseWriter, r *http.Request) {
	var (
		status   JsonResult
		sts      map[string]interface{}
		err      error
		dataDir  string
		pending  int
		assets   int
		diskInfo *disk.UsageStat
		memInfo  *mem.VirtualMemoryStat
	)
	if !c.IsPeer(r) {
		status.Status = "fail"
		status.Message = c.GetClusterNotPermitMessage(r)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(c.util.JsonEncodePretty(status)))
		return
	}
	memStat := new(runtime.MemStats)
	runtime.ReadMemStats(memStat)
	sts = make(map[string]interface{})
	if pending, err = c.table.Count(r.Context(), model.KeyPrefix); err != nil {
		log.Error(err)
	}
	if assets, err = c.table.Count(r.Context(), model.AssetKeyPrefix); err != nil {
		log.Error(err)
	}
	sts["Fs.UploadsPending"] = pending
	sts["Fs.Assets"] = assets
	sts["Fs.BlobType"] = Config().BlobType
	sts["Fs.MetadataType"] = Config().MetadataType
	sts["Fs.Expiration"] = Config().Expiration
	sts["Fs.SweepInterval"] = Config().SweepInterval
	sts["Fs.MaxSize"] = Config().MaxSize
	sts["Sys.NumGoroutine"] = runtime.NumGoroutine()
	sts["Sys.NumCpu"] = runtime.NumCPU()
	sts["Sys.Alloc"] = memStat.Alloc
	sts["Sys.TotalAlloc"] = memStat.TotalAlloc
	sts["Sys.HeapAlloc"] = memStat.HeapAlloc
	sts["Sys.NumGC"] = memStat.NumGC
	if dataDir, err = filepath.Abs(Config().DataDir); err != nil {
		log.Error(err)
	}
	if diskInfo, err = disk.Usage(dataDir); err != nil {
		log.Error(err)
	}
	sts["Sys.DiskInfo"] = diskInfo
	if memInfo, err = mem.VirtualMemory(); err != nil {
		log.Error(err)
	}
	sts["Sys.MemInfo"] = memInfo
	status.Status = "ok"
	status.Data = sts
	w.Write([]byte(c.util.JsonEncodePretty(status)))
}
