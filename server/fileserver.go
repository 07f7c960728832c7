package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	mapset "github.com/deckarep/golang-set"
	log "github.com/sjqzhang/seelog"

	"github.com/sjqzhang/go-resumable/internal/kv"
	"github.com/sjqzhang/go-resumable/internal/model"
)

type JsonResult struct {
	Message string      `json:"message"`
	Status  string      `json:"status"`
	Data    interface{} `json:"data"`
}

func (c *Server) GetAsset(ctx context.Context, id string) (*model.Asset, error) {
	var (
		err   error
		data  []byte
		asset model.Asset
	)
	if data, err = c.table.Get(ctx, model.AssetKey(id)); err != nil {
		return nil, err
	}
	if err = json.Unmarshal(data, &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}

func (c *Server) SaveAsset(ctx context.Context, asset *model.Asset) error {
	var (
		err  error
		data []byte
	)
	if asset == nil {
		return errors.New("asset is null")
	}
	if data, err = json.Marshal(asset); err != nil {
		return err
	}
	return c.table.Set(ctx, model.AssetKey(asset.ID), data, noExpiry)
}

// RemoveAsset drops the artifact and its record. Missing assets are ignored.
func (c *Server) RemoveAsset(ctx context.Context, id string) error {
	if err := c.assets.Delete(ctx, id); err != nil {
		return err
	}
	if err := c.table.Delete(ctx, model.AssetKey(id)); err != nil && !errors.Is(err, kv.ErrNotFound) {
		return err
	}
	return nil
}

func isPublicIP(IP net.IP) bool {
	if IP.IsLoopback() || IP.IsLinkLocalMulticast() || IP.IsLinkLocalUnicast() {
		return false
	}
	if ip4 := IP.To4(); ip4 != nil {
		switch true {
		case ip4[0] == 10:
			return false
		case ip4[0] == 172 && ip4[1] >= 16 && ip4[1] <= 31:
			return false
		case ip4[0] == 192 && ip4[1] == 168:
			return false
		default:
			return true
		}
	}
	return false
}

// IsPeer reports whether r comes from an admin address. admin_ips takes
// plain ips, cidrs, or 0.0.0.0 for every private address.
func (c *Server) IsPeer(r *http.Request) bool {
	var (
		ip   string
		cidr *net.IPNet
		err  error
	)
	ip = c.util.GetClientIp(r)
	if ip == "127.0.0.1" || ip == "::1" {
		return true
	}
	admins := mapset.NewSet()
	for _, v := range Config().AdminIps {
		admins.Add(v)
	}
	if admins.Contains("0.0.0.0") {
		return !isPublicIP(net.ParseIP(ip))
	}
	if admins.Contains(ip) {
		return true
	}
	for _, v := range admins.ToSlice() {
		s := v.(string)
		if strings.Contains(s, "/") {
			if _, cidr, err = net.ParseCIDR(s); err != nil {
				log.Error(err)
				continue
			}
			if cidr.Contains(net.ParseIP(ip)) {
				return true
			}
		}
	}
	return false
}

func (c *Server) GetClusterNotPermitMessage(r *http.Request) string {
	return fmt.Sprintf(CONST_MESSAGE_NOT_PERMITTED, c.util.GetClientIp(r))
}

func (c *Server) RegisterExit() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		for s := range ch {
			switch s {
			case syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
				c.Close()
				log.Info("Exit", s)
				log.Flush()
				os.Exit(1)
			}
		}
	}()
}
