package commands

import (
	"context"
	"os"
	"strings"
	"time"

	"helpcy/internal/config"
	"helpcy/internal/models"
	"helpcy/internal/services"
	contextutils "helpcy/internal/utils"

	"github.com/spf13/cobra"
)

// adminUserID owns media uploaded from the admin tool
const adminUserID int64 = 1

// ClassifyCommand runs the classifier on a local file
func ClassifyCommand(provide ContainerProvider) *cobra.Command {
	var file, mode string

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify a local photo or voice note",
		Long: `Run the configured classifier on a local file and print the result.

The mode is guessed from the file content when --mode is not given. The
result is always a valid catalog pair; "fallback" is true when the provider
failed or is not configured.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()

			data, err := os.ReadFile(file)
			if err != nil {
				return contextutils.WrapErrorf(err, "failed to read %s", file)
			}
			if len(data) > config.MaxMediaBytes {
				return contextutils.ErrorWithContextf("%s is larger than %d bytes", file, config.MaxMediaBytes)
			}
			contentType := services.NormalizeContentType(data, "")
			kind, err := classifyMode(mode, contentType)
			if err != nil {
				return err
			}

			container, err := provide(ctx)
			if err != nil {
				return err
			}
			media, err := container.GetMediaStore()
			if err != nil {
				return err
			}
			classifier, err := container.GetClassifier()
			if err != nil {
				return err
			}

			ref, err := media.Put(ctx, adminUserID, kind, data, contentType)
			if err != nil {
				return contextutils.WrapError(err, "failed to store media")
			}

			start := time.Now()
			result := classifier.Classify(ctx, &services.ClassificationInput{UserID: adminUserID, Mode: kind, MediaRef: ref})
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"file":         file,
				"mode":         kind,
				"content_type": contentType,
				"result":       result,
				"elapsed_ms":   time.Since(start).Milliseconds(),
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Path to a photo or audio file (required)")
	cmd.Flags().StringVar(&mode, "mode", "", "photo or audio")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func classifyMode(mode, contentType string) (models.MediaKind, error) {
	switch strings.ToLower(mode) {
	case "photo":
		return models.MediaPhoto, nil
	case "audio":
		return models.MediaAudio, nil
	case "":
		if strings.HasPrefix(contentType, "image/") {
			return models.MediaPhoto, nil
		}
		if strings.HasPrefix(contentType, "audio/") || contentType == "application/ogg" || contentType == "video/webm" {
			return models.MediaAudio, nil
		}
		return "", contextutils.ErrorWithContextf("cannot infer mode from content type %q, pass --mode", contentType)
	}
	return "", contextutils.ErrorWithContextf("unknown mode %q, expected photo or audio", mode)
}
