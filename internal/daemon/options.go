package daemon

import mqtt "github.com/eclipse/paho.mqtt.golang"

// WithMQTTClient makes the MQTT bridge use client instead of dialing the
// configured broker
func WithMQTTClient(client mqtt.Client) Option {
	return func(o *options) {
		o.mqttClient = client
	}
}
