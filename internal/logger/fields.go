package logger

import "go.uber.org/zap"

func CampaignID(v int) zap.Field { return zap.Int("campaign_id", v) }
func RecipientID(v int) zap.Field { return zap.Int("recipient_id", v) }
func SubscriberID(v int) zap.Field { return zap.Int("subscriber_id", v) }
func JobID(v string) zap.Field { return zap.String("job_id", v) }
func Event(v string) zap.Field { return zap.String("event", v) }
func Status(v string) zap.Field { return zap.String("status", v) }
func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field { return zap.String("op", v) }
func Count(v int) zap.Field { return zap.Int("count", v) }
func Err(err error) zap.Field { return zap.Error(err) }

// Email is logged as-is; keep it at debug level in prod.
func Email(v string) zap.Field { return zap.String("email", v) }

func String(key, v string) zap.Field { return zap.String(key, v) }
func Int(key string, v int) zap.Field { return zap.Int(key, v) }
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }
