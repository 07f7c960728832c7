package server

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"unsafe"

	units "github.com/docker/go-units"
	jsoniter "github.com/json-iterator/go"
	log "github.com/sjqzhang/seelog"

	"github.com/sjqzhang/go-resumable/internal/blob"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary
var server *Server = nil
var logacc log.LoggerInterface
var FOLDERS = []string{DATA_DIR, CONF_DIR, LOG_DIR}

var (
	VERSION     string
	BUILD_TIME  string
	GO_VERSION  string
	GIT_VERSION string
)

var (
	FileName             string
	ptr                  unsafe.Pointer
	DOCKER_DIR           = ""
	CONF_DIR             = CONF_DIR_NAME
	LOG_DIR              = LOG_DIR_NAME
	DATA_DIR             = DATA_DIR_NAME
	CONST_CONF_FILE_NAME = CONF_DIR + "/cfg.json"
	logConfigStr         = `
<seelog type="asynctimer" asyncinterval="1000" minlevel="trace" maxlevel="error">
	<outputs formatid="common">
		<buffered formatid="common" size="1048576" flushperiod="1000">
			<rollingfile type="size" filename="{DOCKER_DIR}log/resumable.log" maxsize="104857600" maxrolls="10"/>
		</buffered>
	</outputs>
	 <formats>
		 <format id="common" format="%Date %Time [%LEV] [%File:%Line] [%Func] %Msg%n" />
	 </formats>
</seelog>
`
	logAccessConfigStr = `
<seelog type="asynctimer" asyncinterval="1000" minlevel="trace" maxlevel="error">
	<outputs formatid="common">
		<buffered formatid="common" size="1048576" flushperiod="1000">
			<rollingfile type="size" filename="{DOCKER_DIR}log/access.log" maxsize="104857600" maxrolls="10"/>
		</buffered>
	</outputs>
	 <formats>
		 <format id="common" format="%Date %Time [%LEV] [%File:%Line] [%Func] %Msg%n" />
	 </formats>
</seelog>
`
)

const (
	LOG_DIR_NAME                = "log"
	DATA_DIR_NAME               = "data"
	CONF_DIR_NAME               = "conf"
	CONST_TUS_LOG_MAX_SIZE      = 1024 * 1024 * 500
	CONST_DEFAULT_BASE_PATH     = "/files/"
	CONST_DEFAULT_EXPIRATION    = 2 * 24 * 3600
	CONST_DEFAULT_SWEEP         = 600
	CONST_CHECKSUM_MISMATCH     = 460
	CONST_MESSAGE_NOT_PERMITTED = "Can only be called by 127.0.0.1 or admin_ips(cfg.json),current ip:%s"
	cfgJson                     = `{
	"绑定端号": "端口",
	"addr": ":8080",
	"断点续传路径": "tus协议的上传地址,必须以/结尾",
	"base_path": "/files/",
	"数据目录": "元数据及默认分片目录的根目录",
	"data_dir": "data",
	"临时目录": "合并分片时使用的临时目录,留空为系统临时目录",
	"temp_dir": "",
	"分片存储类型": "folder|memory|s3",
	"blob_type": "folder",
	"分片目录": "blob_type为folder时生效",
	"blob_dir": "data/parts",
	"成品目录": "上传完成后合并文件的存放目录(blob_type为folder时生效)",
	"asset_dir": "data/assets",
	"s3配置": "blob_type为s3时生效,分片存放在prefix/parts下,成品存放在prefix/assets下",
	"s3": {
		"bucket": "",
		"region": "us-east-1",
		"endpoint": "",
		"prefix": "",
		"access_key": "",
		"secret_key": "",
		"use_path_style": true
	},
	"元数据存储类型": "leveldb|sqlite|memory",
	"metadata_type": "leveldb",
	"元数据路径": "leveldb为目录,sqlite为文件",
	"metadata_path": "data/uploads.db",
	"上传过期时间": "单位秒,创建后超过该时间未完成的上传会被清理",
	"expiration": 172800,
	"清理间隔": "单位秒",
	"sweep_interval": 600,
	"上传文件最大值": "如 10GB, 0 表示不限制",
	"max_size": "0",
	"合并后是否保留分片": "默认合并成功后立即删除分片及元数据",
	"keep_parts_on_assemble": false,
	"认证url": "当url不为空时生效,在断点续传中通过HTTP头Upload-Metadata中的auth_token作为认证参数",
	"auth_url": "",
	"是否开启Google认证": "开启后Upload-Metadata中必须带code,使用upload_secret校验",
	"enable_google_auth": false,
	"upload_secret": "",
	"管理ip列表": "用于管理的ip白名单,如果放开所有内网则可以用 0.0.0.0 ,注意为了安全，不对外网开放",
	"admin_ips": ["127.0.0.1"],
	"是否开启跨站访问": "默认开启",
	"enable_cross_origin": true,
	"是否开启监控": "开启后 /metrics 输出prometheus指标",
	"enable_metrics": true,
	"read_timeout": 0,
	"write_timeout": 0,
	"idle_timeout": 0
}
	`
)

type GlobalConfig struct {
	Addr                string        `json:"addr"`
	BasePath            string        `json:"base_path"`
	DataDir             string        `json:"data_dir"`
	TempDir             string        `json:"temp_dir"`
	BlobType            string        `json:"blob_type"`
	BlobDir             string        `json:"blob_dir"`
	AssetDir            string        `json:"asset_dir"`
	S3                  blob.S3Config `json:"s3"`
	MetadataType        string        `json:"metadata_type"`
	MetadataPath        string        `json:"metadata_path"`
	Expiration          int64         `json:"expiration"`
	SweepInterval       int64         `json:"sweep_interval"`
	MaxSize             string        `json:"max_size"`
	KeepPartsOnAssemble bool          `json:"keep_parts_on_assemble"`
	AuthUrl             string        `json:"auth_url"`
	EnableGoogleAuth    bool          `json:"enable_google_auth"`
	UploadSecret        string        `json:"upload_secret"`
	AdminIps            []string      `json:"admin_ips"`
	EnableCrossOrigin   bool          `json:"enable_cross_origin"`
	EnableMetrics       bool          `json:"enable_metrics"`
	ReadTimeout         int           `json:"read_timeout"`
	WriteTimeout        int           `json:"write_timeout"`
	IdleTimeout         int           `json:"idle_timeout"`
}

// MaxSizeBytes parses max_size, 0 means unlimited.
func (c *GlobalConfig) MaxSizeBytes() (int64, error) {
	if c.MaxSize == "" || c.MaxSize == "0" {
		return 0, nil
	}
	return units.RAMInBytes(c.MaxSize)
}

func (c *GlobalConfig) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.BasePath == "" {
		c.BasePath = CONST_DEFAULT_BASE_PATH
	}
	if !strings.HasSuffix(c.BasePath, "/") {
		c.BasePath = c.BasePath + "/"
	}
	if c.DataDir == "" {
		c.DataDir = DATA_DIR
	}
	if c.BlobType == "" {
		c.BlobType = "folder"
	}
	if c.BlobDir == "" {
		c.BlobDir = c.DataDir + "/parts"
	}
	if c.AssetDir == "" {
		c.AssetDir = c.DataDir + "/assets"
	}
	if c.MetadataType == "" {
		c.MetadataType = "leveldb"
	}
	if c.MetadataPath == "" {
		c.MetadataPath = c.DataDir + "/uploads.db"
	}
	if c.Expiration <= 0 {
		c.Expiration = CONST_DEFAULT_EXPIRATION
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = CONST_DEFAULT_SWEEP
	}
}

func Config() *GlobalConfig {
	return (*GlobalConfig)(atomic.LoadPointer(&ptr))
}

func setConfig(c *GlobalConfig) {
	atomic.StorePointer(&ptr, unsafe.Pointer(c))
}

func loadConfig(data []byte) (*GlobalConfig, error) {
	var c GlobalConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if _, err := c.MaxSizeBytes(); err != nil {
		return nil, fmt.Errorf("max_size: %w", err)
	}
	c.setDefaults()
	return &c, nil
}

// ParseConfig loads filePath, or the built in defaults when it is empty,
// and panics on a broken file.
func ParseConfig(filePath string) {
	var (
		data []byte
		err  error
	)
	if filePath == "" {
		data = []byte(strings.TrimSpace(cfgJson))
	} else {
		FileName = filePath
		if data, err = os.ReadFile(filePath); err != nil {
			panic(fmt.Sprintln("file path:", filePath, " read all error:", err))
		}
	}
	c, err := loadConfig(data)
	if err != nil {
		panic(fmt.Sprintln("file path:", filePath, "json unmarshal error:", err))
	}
	setConfig(c)
	log.Info("config parse success")
}

// ReloadConfig swaps in the content of filePath. The running config is kept
// when the file cannot be parsed.
func ReloadConfig(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	c, err := loadConfig(data)
	if err != nil {
		return err
	}
	setConfig(c)
	log.Info("config reload success")
	return nil
}
