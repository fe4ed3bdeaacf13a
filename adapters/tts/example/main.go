package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/satriahrh/sandiwara/adapters/tts"
)

func main() {
	godotenv.Load()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ttsService, err := tts.NewOpenSpeechTTS(tts.NewOpenSpeechConfigFromEnv(), logger)
	if err != nil {
		logger.Fatal("Failed to create TTS service", zap.Error(err))
	}

	text := "大家好，欢迎收听今天的节目。"
	if len(os.Args) > 1 {
		text = os.Args[1]
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	defer ttsService.Close(context.Background())

	logger.Info("Converting text to speech", zap.String("text", text))

	audioChan, err := ttsService.ConvertTextToSpeech(ctx, text)
	if err != nil {
		logger.Fatal("Failed to convert text to speech", zap.Error(err))
	}

	outputFile := "example_output.mp3"
	file, err := os.Create(outputFile)
	if err != nil {
		logger.Fatal("Failed to create output file", zap.Error(err))
	}
	defer file.Close()

	totalBytes := 0
	chunkCount := 0
	for audioChunk := range audioChan {
		n, err := file.Write(audioChunk)
		if err != nil {
			logger.Error("Failed to write audio chunk", zap.Error(err))
			break
		}
		totalBytes += n
		chunkCount++
	}

	if totalBytes == 0 {
		logger.Fatal("No audio received")
	}

	logger.Info("Saved synthesized audio",
		zap.String("file", outputFile),
		zap.Int("chunks", chunkCount),
		zap.Int("bytes", totalBytes))
}
