package tele

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/uplink/helpers"
	"github.com/temoto/uplink/log2"
	tele_api "github.com/temoto/uplink/tele"
	tele_config "github.com/temoto/uplink/tele/config"
)

var mqttLoggerOnce sync.Once

type transportMqtt struct {
	alive          *alive.Alive
	log            *log2.Log
	m              mqtt.Client
	mopt           *mqtt.ClientOptions
	networkTimeout time.Duration
	// test code sets newClient
	newClient func(*mqtt.ClientOptions) mqtt.Client

	topicConnect   string
	topicState     string
	topicTelemetry string
}

func (self *transportMqtt) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, willPayload []byte) error {
	self.log = log
	self.alive = alive.NewAlive()
	mqttLog := self.log.Clone(log2.LInfo)
	if teleConfig.MqttLogDebug {
		mqttLog.SetLevel(log2.LDebug)
	}
	// paho loggers are package globals
	mqttLoggerOnce.Do(func() {
		mqtt.CRITICAL = mqttLog
		mqtt.ERROR = mqttLog
		mqtt.WARN = mqttLog
		if teleConfig.MqttLogDebug {
			mqtt.DEBUG = mqttLog
		}
	})

	if _, err := url.ParseRequestURI(teleConfig.MqttBroker); err != nil {
		return errors.Annotatef(err, "tele mqtt_broker=%s", teleConfig.MqttBroker)
	}

	mqttClientId := fmt.Sprintf("dev%d", teleConfig.DeviceId)
	self.topicConnect = tele_api.TopicConnect(teleConfig.DeviceId)
	self.topicState = tele_api.TopicState(teleConfig.DeviceId)
	self.topicTelemetry = tele_api.TopicTelemetry(teleConfig.DeviceId)

	self.networkTimeout = helpers.IntSecondDefault(teleConfig.NetworkTimeoutSec, DefaultNetworkTimeout)
	if self.networkTimeout < 1*time.Second {
		self.networkTimeout = 1 * time.Second
	}
	connectTimeout := self.networkTimeout * 3
	keepaliveTimeout := helpers.IntSecondDefault(teleConfig.KeepaliveSec, self.networkTimeout/2)

	self.mopt = mqtt.NewClientOptions().
		AddBroker(teleConfig.MqttBroker).
		SetAutoReconnect(true).
		SetBinaryWill(self.topicConnect, willPayload, 1, true).
		SetCleanSession(false).
		SetClientID(mqttClientId).
		SetUsername(mqttClientId).
		SetPassword(teleConfig.MqttPassword).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepaliveTimeout).
		SetPingTimeout(self.networkTimeout).
		SetOnConnectHandler(self.onConnectHandler).
		SetConnectionLostHandler(self.connectLostHandler)
	if self.newClient == nil {
		self.newClient = mqtt.NewClient
	}
	self.m = self.newClient(self.mopt)

	self.alive.Add(1)
	go self.online()
	return nil
}

func (self *transportMqtt) Close() {
	self.alive.Stop()
	self.alive.Wait()
	if self.m.IsConnected() {
		self.m.Disconnect(uint(self.networkTimeout / time.Millisecond))
	}
}

func (self *transportMqtt) SendState(payload []byte) bool {
	t := self.m.Publish(self.topicState, 1, true, payload)
	err := self.tokenWait(t, "publish state")
	return err == nil
}

func (self *transportMqtt) SendTelemetry(payload []byte) bool {
	t := self.m.Publish(self.topicTelemetry, 1, false, payload)
	err := self.tokenWait(t, "publish telemetry")
	return err == nil
}

// online keeps trying first connect, paho auto reconnect takes over after.
func (self *transportMqtt) online() {
	defer self.alive.Done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-self.alive.StopChan():
			cancel()
		case <-ctx.Done():
		}
	}()

	backoff := helpers.Backoff{Min: time.Second, Max: self.networkTimeout * 4, K: 2}
	for self.alive.IsRunning() && !self.m.IsConnected() {
		if err := backoff.Sleep(ctx); err != nil {
			return
		}
		t := self.m.Connect()
		err := self.tokenWait(t, "connect")
		backoff.Update(err == nil)
		if err == nil {
			return // success path
		}
	}
}

func (self *transportMqtt) onConnectHandler(c mqtt.Client) {
	self.log.Infof("tele: MQTT connected")
	c.Publish(self.topicConnect, 1, true, []byte{0x01})
}

func (self *transportMqtt) connectLostHandler(c mqtt.Client, err error) {
	self.log.Infof("tele: MQTT connection lost err=%v", err)
}

// tele transport errors are logged at info level,
// error hook forwards errors to telemetry and would loop.
func (self *transportMqtt) tokenWait(t mqtt.Token, tag string) error {
	if !t.WaitTimeout(self.networkTimeout) {
		err := errors.Timeoutf("tele: MQTT %s", tag)
		self.log.Infof("%s", err.Error())
		return err
	}
	if err := t.Error(); err != nil {
		err = errors.Annotatef(err, "tele: MQTT %s", tag)
		self.log.Infof("%s", err.Error())
		return err
	}
	return nil
}
