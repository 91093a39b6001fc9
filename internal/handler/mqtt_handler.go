package handler

import (
	"encoding/json"
	"strings"

	"aetheris-dashboard/internal/config"
	"aetheris-dashboard/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	TopicInjectAlert   = "aetheris/alerts/inject"
	TopicProcedureStep = "aetheris/intraop/step"
)

// ControlTarget receives commands from the MQTT control feed.
type ControlTarget interface {
	InjectAlert(req models.AlertCreate) models.Alert
	AdvanceProcedureStep() int
	SetProcedureStep(step int) int
}

type procedureStepCommand struct {
	Step *int `json:"step"`
}

func NewMessageHandler(target ControlTarget, logger *zap.Logger) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		logger.Debug("Received message", zap.String("topic", msg.Topic()), zap.ByteString("payload", msg.Payload()))

		switch msg.Topic() {
		case TopicInjectAlert:
			handleInjectAlert(target, msg.Payload(), logger)
		case TopicProcedureStep:
			handleProcedureStep(target, msg.Payload(), logger)
		default:
			logger.Warn("Unknown topic", zap.String("topic", msg.Topic()))
		}
	}
}

func handleInjectAlert(target ControlTarget, payload []byte, logger *zap.Logger) {
	var req models.AlertCreate
	if err := json.Unmarshal(payload, &req); err != nil {
		logger.Warn("Could not parse alert injection", zap.Error(err))
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		logger.Warn("Dropping alert injection without title", zap.String("patient_id", req.PatientID))
		return
	}
	alert := target.InjectAlert(req)
	logger.Info("Injected alert", zap.String("alert_id", alert.ID), zap.String("severity", string(alert.Type)))
}

// handleProcedureStep advances one step on an empty payload, otherwise jumps
// to the given step.
func handleProcedureStep(target ControlTarget, payload []byte, logger *zap.Logger) {
	if len(strings.TrimSpace(string(payload))) == 0 {
		step := target.AdvanceProcedureStep()
		logger.Info("Advanced procedure step", zap.Int("step", step))
		return
	}
	var cmd procedureStepCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		logger.Warn("Could not parse procedure step command", zap.Error(err))
		return
	}
	var step int
	if cmd.Step == nil {
		step = target.AdvanceProcedureStep()
	} else {
		step = target.SetProcedureStep(*cmd.Step)
	}
	logger.Info("Procedure step set", zap.Int("step", step), zap.String("label", models.ProcedureSteps[step]))
}

func InitializeMQTT(cfg *config.Config, target ControlTarget, logger *zap.Logger) (mqtt.Client, error) {
	logger = logger.Named("mqtt")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTBroker)
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetUsername(cfg.MQTTUsername)
	opts.SetPassword(cfg.MQTTPassword)
	opts.SetAutoReconnect(true)
	opts.SetDefaultPublishHandler(NewMessageHandler(target, logger))
	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", cfg.MQTTBroker))
		subscribeToTopics(client, logger)
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	return client, nil
}

func subscribeToTopics(client mqtt.Client, logger *zap.Logger) {
	topics := []string{TopicInjectAlert, TopicProcedureStep}
	for _, topic := range topics {
		token := client.Subscribe(topic, 1, nil)
		if token.Wait() && token.Error() != nil {
			logger.Error("Failed to subscribe", zap.String("topic", topic), zap.Error(token.Error()))
			continue
		}
		logger.Info("Subscribed to topic", zap.String("topic", topic))
	}
}
